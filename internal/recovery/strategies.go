package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/diagnose"
)

// RetryConfig tunes the delay-based strategies.
type RetryConfig struct {
	InitialInterval     time.Duration // first retry delay (default 500ms)
	MaxInterval         time.Duration // delay ceiling (default 10s)
	Multiplier          float64       // backoff multiplier (default 2.0)
	RandomizationFactor float64       // jitter factor (default 0.5)
	ReissueTimeout      time.Duration // deadline for re-issued commands (default 30s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		ReissueTimeout:      30 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.RandomizationFactor < 0 {
		c.RandomizationFactor = d.RandomizationFactor
	}
	if c.ReissueTimeout <= 0 {
		c.ReissueTimeout = d.ReissueTimeout
	}
	return c
}

// newBackoff builds a fresh backoff policy per invocation so a re-run after
// a partial failure starts from a clean state.
func (c RetryConfig) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.RandomizationFactor
	return b
}

// BuiltinStrategies returns the default strategy registry in registration
// order. cfg zero values fall back to DefaultRetryConfig.
func BuiltinStrategies(cfg RetryConfig) []Strategy {
	cfg = cfg.withDefaults()
	return []Strategy{
		RetryWithDelay(cfg),
		AlternativeTarget(cfg),
		TimeoutExtension(cfg),
		ResourceWait(cfg),
		RefocusRestart(cfg),
	}
}

// RetryWithDelay waits one backoff interval and re-issues the failing
// command. Applicable at low priority to most transient categories.
func RetryWithDelay(cfg RetryConfig) Strategy {
	return Strategy{
		Name: "retry-with-delay",
		Score: func(rec *diagnose.ErrorRecord, _ *chain.ExecutionContext) float64 {
			switch rec.Category {
			case diagnose.CategoryCommandSyntax, diagnose.CategoryPermissionDenied:
				// Retrying the identical command cannot fix these.
				return 0
			default:
				return 0.4
			}
		},
		Actions: []Action{
			waitAction("wait", cfg, 1),
			reissueAction("reissue", cfg, 1),
		},
	}
}

// AlternativeTarget re-resolves the failing command's template against
// fresh context variables and re-issues it, for elements that moved since
// the original resolution.
func AlternativeTarget(cfg RetryConfig) Strategy {
	return Strategy{
		Name: "alternative-target",
		Score: func(rec *diagnose.ErrorRecord, _ *chain.ExecutionContext) float64 {
			if rec.Category == diagnose.CategoryElementNotFound {
				return 0.9
			}
			return 0
		},
		Actions: []Action{
			reissueAction("rederive-and-reissue", cfg, 1),
		},
	}
}

// TimeoutExtension re-issues the command with a doubled deadline.
func TimeoutExtension(cfg RetryConfig) Strategy {
	return Strategy{
		Name: "timeout-extension",
		Score: func(rec *diagnose.ErrorRecord, _ *chain.ExecutionContext) float64 {
			if rec.Category == diagnose.CategoryTimeout {
				return 0.8
			}
			return 0
		},
		Actions: []Action{
			reissueAction("reissue-extended", cfg, 2),
		},
	}
}

// ResourceWait backs off long enough for a contended resource to free up,
// then re-issues the command.
func ResourceWait(cfg RetryConfig) Strategy {
	return Strategy{
		Name: "resource-wait",
		Score: func(rec *diagnose.ErrorRecord, _ *chain.ExecutionContext) float64 {
			if rec.Category == diagnose.CategoryResourceUnavailable {
				return 0.7
			}
			return 0
		},
		Actions: []Action{
			waitAction("wait-for-resource", cfg, 3),
			reissueAction("reissue", cfg, 1),
		},
	}
}

// RefocusRestart brings a non-responding application back: refocus first,
// restart only if refocusing fails, then re-issue the original command. The
// application name is read from the "active_app" context variable.
func RefocusRestart(cfg RetryConfig) Strategy {
	return Strategy{
		Name: "app-refocus-restart",
		Score: func(rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) float64 {
			if rec.Category != diagnose.CategoryApplicationNotResponding {
				return 0
			}
			if _, ok := ec.Var("active_app"); !ok {
				return 0
			}
			return 0.85
		},
		Actions: []Action{
			{
				Name: "refocus-or-restart",
				Run: func(ctx context.Context, _ *diagnose.ErrorRecord, ec *chain.ExecutionContext) bool {
					v, ok := ec.Var("active_app")
					if !ok {
						return false
					}
					name := fmt.Sprint(v)
					if issueCommand(ctx, ec, "focus "+name, cfg.ReissueTimeout) {
						return true
					}
					return issueCommand(ctx, ec, "restart "+name, cfg.ReissueTimeout)
				},
			},
			reissueAction("reissue", cfg, 1),
		},
	}
}

// waitAction sleeps for `intervals` consecutive backoff intervals,
// respecting context cancellation.
func waitAction(name string, cfg RetryConfig, intervals int) Action {
	return Action{
		Name: name,
		Run: func(ctx context.Context, _ *diagnose.ErrorRecord, _ *chain.ExecutionContext) bool {
			b := cfg.newBackoff()
			for i := 0; i < intervals; i++ {
				select {
				case <-ctx.Done():
					return false
				case <-time.After(b.NextBackOff()):
				}
			}
			return true
		},
	}
}

// reissueAction re-resolves the failing command's template against the live
// context and executes it with timeoutFactor times the configured reissue
// deadline. On success the result data is stashed for the engine.
func reissueAction(name string, cfg RetryConfig, timeoutFactor int) Action {
	return Action{
		Name: name,
		Run: func(ctx context.Context, rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) bool {
			command := ec.ResolveCommand(rec.Snapshot.RawCommand)
			timeout := cfg.ReissueTimeout * time.Duration(timeoutFactor)

			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := ec.Executor().Execute(cctx, command)
			if err != nil || !res.Success {
				return false
			}
			ec.SetVar(recoveredDataVar, res.Data)
			return true
		},
	}
}

// issueCommand runs a synthesized command (not the failing one) and reports
// whether it succeeded.
func issueCommand(ctx context.Context, ec *chain.ExecutionContext, command string, timeout time.Duration) bool {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := ec.Executor().Execute(cctx, command)
	return err == nil && res.Success
}
