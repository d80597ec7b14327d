package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Queue operations"}

	queueCmd.AddCommand(
		newQueueStatsCommand(baseURL),
		newQueuePauseCommand(baseURL),
		newQueueResumeCommand(baseURL),
		newQueueClearCommand(baseURL),
	)

	return queueCmd
}

// newQueueStatsCommand constructs the `queue stats` subcommand.
func newQueueStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-queue message counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dlq, _ := cmd.Flags().GetBool("dlq")
			path := "/v1/queues/stats"
			if dlq {
				path = "/v1/queues/dlq/stats"
			}
			var out map[string]any
			if err := getJSON(baseURL, path, &out); err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	statsCmd.Flags().Bool("dlq", false, "Show dead-letter queues instead of main queues")
	return statsCmd
}

// newQueuePauseCommand constructs the `queue pause` subcommand.
func newQueuePauseCommand(baseURL BaseURLFunc) *cobra.Command {
	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause consumption from a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("queue")
			if name == "" {
				return fmt.Errorf("queue name is required")
			}
			if err := postJSON(baseURL, "/v1/queues/pause", map[string]string{"queue": name}, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "paused:", name)
			return nil
		},
	}
	pauseCmd.Flags().StringP("queue", "q", "", "Queue name")
	return pauseCmd
}

// newQueueResumeCommand constructs the `queue resume` subcommand.
func newQueueResumeCommand(baseURL BaseURLFunc) *cobra.Command {
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume consumption from a paused queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("queue")
			if name == "" {
				return fmt.Errorf("queue name is required")
			}
			if err := postJSON(baseURL, "/v1/queues/resume", map[string]string{"queue": name}, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "resumed:", name)
			return nil
		},
	}
	resumeCmd.Flags().StringP("queue", "q", "", "Queue name")
	return resumeCmd
}

// newQueueClearCommand constructs the `queue clear` subcommand.
func newQueueClearCommand(baseURL BaseURLFunc) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every message in a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("queue")
			confirm, _ := cmd.Flags().GetBool("confirm")
			if name == "" {
				return fmt.Errorf("queue name is required")
			}
			if !confirm {
				return fmt.Errorf("use --confirm to clear all messages from queue %s", name)
			}
			if err := postJSON(baseURL, "/v1/queues/clear", map[string]string{"queue": name}, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cleared:", name)
			return nil
		},
	}
	clearCmd.Flags().StringP("queue", "q", "", "Queue name")
	clearCmd.Flags().Bool("confirm", false, "Confirm the clear operation")
	return clearCmd
}
