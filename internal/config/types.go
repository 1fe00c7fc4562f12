package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config files can use human-readable
// strings ("30s", "1m") instead of nanosecond integers.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(value))
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
	return nil
}

// MarshalJSON renders the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ExecutorConfig controls chain execution.
type ExecutorConfig struct {
	Concurrency     int      `json:"concurrency"`       // Max nodes running in parallel per round
	ActionTimeout   Duration `json:"action_timeout"`    // Default per-action timeout; nodes can override
	ContinueOnError bool     `json:"continue_on_error"` // Keep executing sequences after a node fails
	Shell           string   `json:"shell,omitempty"`   // Shell used to run commands; empty means /bin/sh
}

// RetryConfig controls the exponential backoff used by recovery strategies.
type RetryConfig struct {
	InitialInterval     Duration `json:"initial_interval"`
	MaxInterval         Duration `json:"max_interval"`
	Multiplier          float64  `json:"multiplier"`
	RandomizationFactor float64  `json:"randomization_factor"`
	ReissueTimeout      Duration `json:"reissue_timeout"` // Timeout for re-issued commands during recovery
}

// RecoveryConfig controls the recovery engine.
type RecoveryConfig struct {
	Enabled    bool        `json:"enabled"`
	HistoryCap int         `json:"history_cap"`           // In-memory history ring size
	HistoryDB  string      `json:"history_db,omitempty"`  // Optional SQLite path for persistent history
	Disabled   []string    `json:"disabled,omitempty"`    // Strategy names to leave unregistered
	Retry      RetryConfig `json:"retry"`
}

// BreakerConfig controls the per-command circuit breaker.
type BreakerConfig struct {
	Enabled     bool     `json:"enabled"`
	MaxFailures uint32   `json:"max_failures"` // Consecutive failures before the circuit opens
	OpenTimeout Duration `json:"open_timeout"` // How long an open circuit stays open
}

// Config is the top-level configuration.
type Config struct {
	Executor ExecutorConfig `json:"executor"`
	Recovery RecoveryConfig `json:"recovery"`
	Breaker  BreakerConfig  `json:"breaker"`
}
