package config

import (
	"os"
	"strconv"
)

// FromEnv overlays EXPEDITE_* environment variables onto cfg.
// Queue registry entries are file-only; env covers the scalar knobs.
func FromEnv(cfg *Config) {
	if v := os.Getenv("EXPEDITE_RECEIVE_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReceiveWaitSeconds = n
		}
	}
	if v := os.Getenv("EXPEDITE_RECEIVE_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReceiveBatch = n
		}
	}
	if v := os.Getenv("EXPEDITE_RETRY_BASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.BaseSeconds = n
		}
	}
	if v := os.Getenv("EXPEDITE_RETRY_CAP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.CapSeconds = n
		}
	}
	if v := os.Getenv("EXPEDITE_DLQ_BACKLOG_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.DLQBacklogThreshold = n
		}
	}
	if v := os.Getenv("EXPEDITE_FAILURE_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Alerts.FailureRateThreshold = f
		}
	}
	if v := os.Getenv("EXPEDITE_MONITOR_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.MonitorIntervalSeconds = n
		}
	}
	if v := os.Getenv("EXPEDITE_DEFAULT_RECOVERY_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultRecoveryDelaySeconds = n
		}
	}
}
