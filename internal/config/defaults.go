package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Concurrency:   4,
			ActionTimeout: Duration(30 * time.Second),
		},
		Recovery: RecoveryConfig{
			Enabled:    true,
			HistoryCap: 256,
			Retry: RetryConfig{
				InitialInterval:     Duration(500 * time.Millisecond),
				MaxInterval:         Duration(10 * time.Second),
				Multiplier:          2.0,
				RandomizationFactor: 0.5,
				ReissueTimeout:      Duration(30 * time.Second),
			},
		},
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			OpenTimeout: Duration(30 * time.Second),
		},
	}
}
