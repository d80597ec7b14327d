package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// NewFailureCommand constructs the `failure` command group and subcommands.
func NewFailureCommand(baseURL BaseURLFunc) *cobra.Command {
	failureCmd := &cobra.Command{Use: "failure", Short: "Failure log operations"}

	failureCmd.AddCommand(
		newFailureListCommand(baseURL),
		newFailureResolveCommand(baseURL),
	)

	return failureCmd
}

// newFailureListCommand constructs the `failure list` subcommand.
func newFailureListCommand(baseURL BaseURLFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List failure records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if limit > 0 {
				q.Set("max", fmt.Sprintf("%d", limit))
			}
			path := "/v1/failures"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var out map[string]any
			if err := getJSON(baseURL, path, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	listCmd.Flags().String("status", "", "Filter: pending|auto_recovery_attempted|manual_intervention_required|resolved")
	listCmd.Flags().Int("limit", 0, "Max records to return (0 = server default)")
	return listCmd
}

// newFailureResolveCommand constructs the `failure resolve` subcommand.
func newFailureResolveCommand(baseURL BaseURLFunc) *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark a failure record resolved",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			notes, _ := cmd.Flags().GetString("notes")
			if id == "" {
				return fmt.Errorf("id is required")
			}
			var out map[string]any
			if err := postJSON(baseURL, "/v1/failures/resolve", map[string]string{"id": id, "notes": notes}, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	resolveCmd.Flags().String("id", "", "Failure record ID")
	resolveCmd.Flags().String("notes", "", "Resolution notes")
	return resolveCmd
}
