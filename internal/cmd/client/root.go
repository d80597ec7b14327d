package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the expedite client.
// It registers the queue, job, failure, dlq, and events command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "expedite",
		Short: "Expedite client commands",
	}
	root.AddCommand(NewQueueCommand(baseURL))
	root.AddCommand(NewJobCommand(baseURL))
	root.AddCommand(NewFailureCommand(baseURL))
	root.AddCommand(NewDlqCommand(baseURL))
	root.AddCommand(NewEventsCommand(baseURL))
	return root
}
