package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientcmd "github.com/fornolabs/expedite/internal/cmd/client"
	serverrun "github.com/fornolabs/expedite/internal/cmd/server"
	cfgpkg "github.com/fornolabs/expedite/internal/config"
	pebblestore "github.com/fornolabs/expedite/internal/storage/pebble"
	logpkg "github.com/fornolabs/expedite/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// Respect EXPEDITE_LOG_LEVEL for both CLI and server start output.
	level := os.Getenv("EXPEDITE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.New(logpkg.WithLevel(parsed))

	// Redirect standard library logs (used by pebble) to our logger.
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "expedite",
		Short: "Expedite pipeline CLI",
		Long:  "Expedite is a single-binary order pipeline. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the expedite server (queues, dispatcher, HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			adminEmail, _ := cmd.Flags().GetString("admin-email")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := cfgpkg.Default()
			if configPath != "" {
				var err error
				if cfg, err = cfgpkg.Load(configPath); err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			if logLevel != "" {
				_ = os.Setenv("EXPEDITE_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("EXPEDITE_LOG_FORMAT", logFormat)
			}
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				AdminEmail:    adminEmail,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("config", "", "Path to JSON config overriding queue defaults")
	serverStartCmd.Flags().String("log-level", os.Getenv("EXPEDITE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("EXPEDITE_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().String("admin-email", "", "Operator address alert mails are addressed to")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client command groups
	rootCmd.AddCommand(clientcmd.NewQueueCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewJobCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewFailureCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewDlqCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewEventsCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("EXPEDITE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
