package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the per-verb circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // failures before the circuit trips (default 5)
	OpenTimeout         time.Duration // how long the circuit stays open (default 30s)
	HalfOpenRequests    uint32        // test requests allowed in half-open state (default 3)
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// BreakerExecutor wraps another Executor with one circuit breaker per command
// verb (the first whitespace-separated token). A misbehaving verb trips its
// own circuit without blocking unrelated commands; an open circuit surfaces
// as a resource-unavailable failure and flows through the normal error path.
type BreakerExecutor struct {
	inner    Executor
	cfg      BreakerConfig
	logger   *slog.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerExecutor wraps inner with per-verb circuit breakers.
func NewBreakerExecutor(inner Executor, cfg BreakerConfig, logger *slog.Logger) *BreakerExecutor {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerExecutor{
		inner:    inner,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute runs the command through the breaker for its verb.
func (b *BreakerExecutor) Execute(ctx context.Context, command string) (Result, error) {
	cb := b.breaker(commandVerb(command))

	result, err := cb.Execute(func() (interface{}, error) {
		res, err := b.inner.Execute(ctx, command)
		if err != nil {
			return res, err
		}
		if !res.Success {
			// Command-level failures count against the circuit too.
			return res, fmt.Errorf("command failed: %s", res.ErrorMessage)
		}
		return res, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{
				Success:      false,
				ErrorMessage: fmt.Sprintf("resource unavailable: circuit breaker open for %q: %v", commandVerb(command), err),
			}, nil
		}
		if res, ok := result.(Result); ok {
			return res, nil
		}
		return Result{}, err
	}
	return result.(Result), nil
}

// Close closes the wrapped executor.
func (b *BreakerExecutor) Close() error {
	return b.inner.Close()
}

// breaker returns the circuit breaker for a verb, creating it on first use.
func (b *BreakerExecutor) breaker(verb string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[verb]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        verb,
		MaxRequests: b.cfg.HalfOpenRequests,
		Interval:    0,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change", "verb", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not a command failure. Deadline expiry is:
			// a verb that keeps timing out should trip its circuit.
			return errors.Is(err, context.Canceled)
		},
	})
	b.breakers[verb] = cb
	return cb
}

// commandVerb extracts the first whitespace-separated token of a command.
func commandVerb(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
