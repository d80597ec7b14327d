package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewJobCommand constructs the `job` command group and subcommands.
func NewJobCommand(baseURL BaseURLFunc) *cobra.Command {
	jobCmd := &cobra.Command{Use: "job", Short: "Job operations"}

	jobCmd.AddCommand(
		newJobScheduleCommand(baseURL),
		newJobScheduledCommand(baseURL),
	)

	return jobCmd
}

// newJobScheduleCommand constructs the `job schedule` subcommand.
func newJobScheduleCommand(baseURL BaseURLFunc) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Enqueue a job, optionally delayed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			queueName, _ := cmd.Flags().GetString("queue")
			args, _ := cmd.Flags().GetString("args")
			delay, _ := cmd.Flags().GetInt("delay-seconds")
			if kind == "" {
				return fmt.Errorf("kind is required")
			}
			var raw json.RawMessage
			if args != "" {
				if !json.Valid([]byte(args)) {
					return fmt.Errorf("invalid --args: not JSON")
				}
				raw = json.RawMessage(args)
			}
			body := map[string]any{"kind": kind, "delaySeconds": delay}
			if queueName != "" {
				body["queue"] = queueName
			}
			if raw != nil {
				body["args"] = raw
			}
			var out struct {
				ID string `json:"id"`
			}
			if err := postJSON(baseURL, "/v1/jobs/schedule", body, &out); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "id:", out.ID)
			return nil
		},
	}
	scheduleCmd.Flags().String("kind", "", "Job kind, e.g. email_send")
	scheduleCmd.Flags().StringP("queue", "q", "", "Target queue (default: by kind)")
	scheduleCmd.Flags().String("args", "", "Job payload as JSON")
	scheduleCmd.Flags().Int("delay-seconds", 0, "Delay before the job becomes visible")
	return scheduleCmd
}

// newJobScheduledCommand constructs the `job scheduled` subcommand.
func newJobScheduledCommand(baseURL BaseURLFunc) *cobra.Command {
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List delayed jobs across all queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			path := "/v1/jobs/scheduled"
			if limit > 0 {
				path = fmt.Sprintf("%s?max=%d", path, limit)
			}
			var out map[string]any
			if err := getJSON(baseURL, path, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	scheduledCmd.Flags().Int("limit", 0, "Max jobs to return (0 = server default)")
	return scheduledCmd
}
