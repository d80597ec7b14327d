package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewDlqCommand constructs the `dlq` command group and subcommands.
func NewDlqCommand(baseURL BaseURLFunc) *cobra.Command {
	dlqCmd := &cobra.Command{Use: "dlq", Short: "Dead-letter queue operations"}

	dlqCmd.AddCommand(
		newDlqMessagesCommand(baseURL),
		newDlqRecoverCommand(baseURL),
	)

	return dlqCmd
}

// newDlqMessagesCommand constructs the `dlq messages` subcommand.
func newDlqMessagesCommand(baseURL BaseURLFunc) *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "List messages parked in a queue's DLQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			if name == "" {
				return fmt.Errorf("queue name is required")
			}
			q := url.Values{}
			q.Set("queue", name)
			if limit > 0 {
				q.Set("max", fmt.Sprintf("%d", limit))
			}
			var out map[string]any
			if err := getJSON(baseURL, "/v1/dlq/messages?"+q.Encode(), &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	messagesCmd.Flags().StringP("queue", "q", "", "Main queue name (its DLQ is read)")
	messagesCmd.Flags().Int("limit", 0, "Max messages to return (0 = server default)")
	return messagesCmd
}

// newDlqRecoverCommand constructs the `dlq recover` subcommand.
func newDlqRecoverCommand(baseURL BaseURLFunc) *cobra.Command {
	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Move DLQ messages back onto the main queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("queue")
			ids, _ := cmd.Flags().GetStringArray("id")
			if name == "" || len(ids) == 0 {
				return fmt.Errorf("queue and at least one --id are required")
			}
			var out map[string]any
			body := map[string]any{"queue": name, "ids": ids}
			if err := postJSON(baseURL, "/v1/dlq/recover", body, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	recoverCmd.Flags().StringP("queue", "q", "", "Main queue name")
	recoverCmd.Flags().StringArray("id", []string{}, "DLQ message ID (repeat)")
	return recoverCmd
}
