package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// QueueConfig describes one named queue and its dead-letter companion.
type QueueConfig struct {
	Name                     string `json:"name"`
	DLQName                  string `json:"dlqName"`
	VisibilityTimeoutSeconds int    `json:"visibilityTimeoutSeconds"`
	RetentionSeconds         int    `json:"retentionSeconds"`
	MaxReceiveCount          int    `json:"maxReceiveCount"`
	WorkerCount              int    `json:"workerCount"`
	Priority                 int    `json:"priority"`
}

// VisibilityTimeout returns the lease duration for received messages.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(q.VisibilityTimeoutSeconds) * time.Second
}

// Retention returns how long undelivered messages are kept.
func (q QueueConfig) Retention() time.Duration {
	return time.Duration(q.RetentionSeconds) * time.Second
}

// RetryConfig parameterizes exponential backoff for transient failures.
type RetryConfig struct {
	BaseSeconds int `json:"baseSeconds"`
	CapSeconds  int `json:"capSeconds"`
}

// RecoverySignature marks an error message as auto-recoverable from the DLQ.
// Matching is case-insensitive substring. DelaySeconds is the secondary
// backoff applied when redriving; zero means immediate.
type RecoverySignature struct {
	Match        string `json:"match"`
	DelaySeconds int    `json:"delaySeconds"`
}

// AlertsConfig bounds the queue monitor.
type AlertsConfig struct {
	Queue                  string  `json:"queue"`
	DLQBacklogThreshold    int     `json:"dlqBacklogThreshold"`
	FailureRateThreshold   float64 `json:"failureRateThreshold"`
	MonitorIntervalSeconds int     `json:"monitorIntervalSeconds"`
}

// Config is the top-level configuration. Immutable after startup.
type Config struct {
	Queues             []QueueConfig       `json:"queues"`
	Retry              RetryConfig         `json:"retry"`
	RecoverySignatures []RecoverySignature `json:"recoverySignatures"`
	Alerts             AlertsConfig        `json:"alerts"`

	// ReceiveWaitSeconds is the long-poll window for empty receives.
	ReceiveWaitSeconds int `json:"receiveWaitSeconds"`
	// ReceiveBatch is the max messages fetched per receive.
	ReceiveBatch int `json:"receiveBatch"`
	// DefaultRecoveryDelaySeconds applies when a matched signature carries
	// no delay of its own.
	DefaultRecoveryDelaySeconds int `json:"defaultRecoveryDelaySeconds"`
}

const fourteenDays = 14 * 24 * 60 * 60

// Default returns the built-in five-queue deployment.
func Default() Config {
	return Config{
		Queues: []QueueConfig{
			{Name: "orders", DLQName: "orders-dlq", VisibilityTimeoutSeconds: 300, RetentionSeconds: fourteenDays, MaxReceiveCount: 3, WorkerCount: 2, Priority: 1},
			{Name: "emails", DLQName: "emails-dlq", VisibilityTimeoutSeconds: 60, RetentionSeconds: fourteenDays, MaxReceiveCount: 5, WorkerCount: 2, Priority: 3},
			{Name: "notifications", DLQName: "notifications-dlq", VisibilityTimeoutSeconds: 60, RetentionSeconds: fourteenDays, MaxReceiveCount: 5, WorkerCount: 2, Priority: 4},
			{Name: "analytics", DLQName: "analytics-dlq", VisibilityTimeoutSeconds: 300, RetentionSeconds: fourteenDays, MaxReceiveCount: 3, WorkerCount: 1, Priority: 5},
			{Name: "alerts", DLQName: "alerts-dlq", VisibilityTimeoutSeconds: 60, RetentionSeconds: fourteenDays, MaxReceiveCount: 3, WorkerCount: 1, Priority: 6},
		},
		Retry: RetryConfig{BaseSeconds: 60, CapSeconds: 3600},
		RecoverySignatures: []RecoverySignature{
			{Match: "temporary network error", DelaySeconds: 300},
			{Match: "rate limit exceeded", DelaySeconds: 1800},
			{Match: "service temporarily unavailable", DelaySeconds: 3600},
			{Match: "timeout", DelaySeconds: 0},
		},
		Alerts: AlertsConfig{
			Queue:                  "alerts",
			DLQBacklogThreshold:    10,
			FailureRateThreshold:   0.25,
			MonitorIntervalSeconds: 60,
		},
		ReceiveWaitSeconds:          20,
		ReceiveBatch:                10,
		DefaultRecoveryDelaySeconds: 900,
	}
}

// Load reads configuration from a JSON file overlaid on defaults.
// An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Lookup returns the QueueConfig for name, matching main or DLQ names.
func (c Config) Lookup(name string) (QueueConfig, bool) {
	for _, q := range c.Queues {
		if q.Name == name || q.DLQName == name {
			return q, true
		}
	}
	return QueueConfig{}, false
}

// QueueNames returns the main queue names in priority order as configured.
func (c Config) QueueNames() []string {
	out := make([]string, 0, len(c.Queues))
	for _, q := range c.Queues {
		out = append(out, q.Name)
	}
	return out
}

// Validate enforces registry invariants before anything opens the store.
func (c Config) Validate() error {
	if len(c.Queues) == 0 {
		return fmt.Errorf("config: at least one queue required")
	}
	names := make(map[string]struct{}, len(c.Queues)*2)
	for _, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("config: queue with empty name")
		}
		if q.DLQName == "" || q.DLQName == q.Name {
			return fmt.Errorf("config: queue %q needs a distinct dlqName", q.Name)
		}
		if _, dup := names[q.Name]; dup {
			return fmt.Errorf("config: duplicate queue name %q", q.Name)
		}
		names[q.Name] = struct{}{}
		if _, dup := names[q.DLQName]; dup {
			return fmt.Errorf("config: dlq name %q reused", q.DLQName)
		}
		names[q.DLQName] = struct{}{}
		if q.MaxReceiveCount < 1 {
			return fmt.Errorf("config: queue %q maxReceiveCount must be >= 1", q.Name)
		}
		if q.WorkerCount < 1 {
			return fmt.Errorf("config: queue %q workerCount must be >= 1", q.Name)
		}
		if q.VisibilityTimeoutSeconds < 1 {
			return fmt.Errorf("config: queue %q visibilityTimeoutSeconds must be >= 1", q.Name)
		}
	}
	if _, ok := c.Lookup(c.Alerts.Queue); c.Alerts.Queue != "" && !ok {
		return fmt.Errorf("config: alerts queue %q not in registry", c.Alerts.Queue)
	}
	if c.Retry.BaseSeconds < 1 || c.Retry.CapSeconds < c.Retry.BaseSeconds {
		return fmt.Errorf("config: retry base/cap invalid (%d/%d)", c.Retry.BaseSeconds, c.Retry.CapSeconds)
	}
	return nil
}
