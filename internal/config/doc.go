// Package config holds the immutable runtime configuration: the queue
// registry (per-queue visibility timeout, retention, retry budget, worker
// count, priority), the backoff policy, the DLQ recovery signature set, and
// alerting thresholds. Configuration is loaded once at startup from an
// optional JSON file plus EXPEDITE_* environment overrides and never mutated
// afterwards.
package config
