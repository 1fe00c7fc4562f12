package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/diagnose"
	"github.com/aristath/chainflow/internal/events"
)

// recoveredDataVar is the context variable where a reissue action stashes
// the re-executed command's result data for the engine to pick up.
const recoveredDataVar = "_recovery_data"

// biasWindow is how many recent history entries feed score adjustment.
const biasWindow = 50

// Action is one ordered remediation step of a strategy. Run must be
// idempotent-safe: it may be invoked after a prior partial failure and
// should re-read fresh context state rather than trust cached values.
type Action struct {
	Name string
	Run  func(ctx context.Context, rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) bool
}

// Strategy is a scored, ordered sequence of remediation actions. A strategy
// succeeds only if every action returns true; the first false aborts it with
// no partial credit. Strategies are value objects: consulted fresh per error
// with no state beyond the history log.
type Strategy struct {
	Name string
	// Score returns the applicability of this strategy for an error in
	// [0, 1]. Scores <= 0 drop the strategy from consideration.
	Score   func(rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) float64
	Actions []Action
}

// Outcome reports the result of a recovery run.
type Outcome struct {
	Success   bool
	Strategy  string // winning strategy, empty on failure
	Narrative string // human-readable audit of attempted strategies
	Data      any    // result data of the re-issued command, when resolved
}

// EngineConfig configures a recovery Engine.
type EngineConfig struct {
	History History      // defaults to a NewRingHistory(DefaultHistoryCap)
	Bus     *events.Bus  // optional telemetry bus
	Logger  *slog.Logger // defaults to slog.Default()
}

// Engine selects and executes recovery strategies for classified errors.
// The strategy registry is injected at construction; there is no hidden
// process-wide state.
type Engine struct {
	strategies []Strategy
	history    History
	bus        *events.Bus
	logger     *slog.Logger
}

// NewEngine creates an Engine with the given strategy registry.
func NewEngine(strategies []Strategy, cfg EngineConfig) *Engine {
	if cfg.History == nil {
		cfg.History = NewRingHistory(DefaultHistoryCap)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		strategies: strategies,
		history:    cfg.History,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
	}
}

// History exposes the engine's history log read-only.
func (e *Engine) History() History { return e.history }

// Recover scores every registered strategy against the error, discards
// non-positive scores, and executes the rest in descending score order
// (registration order breaks ties). The first fully-succeeding strategy
// wins. Every attempt is appended to the history.
func (e *Engine) Recover(ctx context.Context, rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) Outcome {
	type candidate struct {
		strategy Strategy
		score    float64
	}

	var candidates []candidate
	for _, s := range e.strategies {
		score := s.Score(rec, ec)
		score -= e.bias(ctx, rec.Category, s.Name)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, candidate{strategy: s, score: score})
	}
	// Stable sort keeps registration order for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) == 0 {
		e.append(ctx, Attempt{Category: rec.Category, Signature: rec.Signature, Timestamp: time.Now()})
		return Outcome{Success: false, Narrative: "no applicable recovery strategy"}
	}

	var narrative []string
	for _, c := range candidates {
		ok, failedAction := e.runStrategy(ctx, c.strategy, rec, ec)

		e.append(ctx, Attempt{
			Category:  rec.Category,
			Strategy:  c.strategy.Name,
			Success:   ok,
			Signature: rec.Signature,
			Timestamp: time.Now(),
		})
		e.publish(events.RecoveryAttempted{
			Category:  string(rec.Category),
			Strategy:  c.strategy.Name,
			Success:   ok,
			Timestamp: time.Now(),
		})

		if ok {
			narrative = append(narrative, fmt.Sprintf("%s (score %.2f): succeeded", c.strategy.Name, c.score))
			rec.Resolved = true
			rec.StrategyUsed = c.strategy.Name

			data, _ := ec.Var(recoveredDataVar)
			ec.DeleteVar(recoveredDataVar)
			return Outcome{
				Success:   true,
				Strategy:  c.strategy.Name,
				Narrative: strings.Join(narrative, "; "),
				Data:      data,
			}
		}
		narrative = append(narrative, fmt.Sprintf("%s (score %.2f): failed at %s", c.strategy.Name, c.score, failedAction))
	}

	return Outcome{Success: false, Narrative: strings.Join(narrative, "; ")}
}

// runStrategy executes a strategy's actions in order. Returns false and the
// aborting action's name on the first action that fails.
func (e *Engine) runStrategy(ctx context.Context, s Strategy, rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) (bool, string) {
	for _, a := range s.Actions {
		if !e.runAction(ctx, a, rec, ec) {
			return false, a.Name
		}
	}
	return true, ""
}

// runAction invokes one recovery action, converting panics into a failed
// action so they never escape and abort the engine.
func (e *Engine) runAction(ctx context.Context, a Action, rec *diagnose.ErrorRecord, ec *chain.ExecutionContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("recovery action panicked", "action", a.Name, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	return a.Run(ctx, rec, ec)
}

// bias penalizes strategies that recently failed for the same category.
// The penalty is half the failure rate over the recent window, so a
// strategy that keeps failing eventually drops out of consideration.
func (e *Engine) bias(ctx context.Context, category diagnose.Category, strategy string) float64 {
	recent, err := e.history.Recent(ctx, biasWindow)
	if err != nil {
		e.logger.Warn("reading recovery history", "error", err)
		return 0
	}

	attempts, failures := 0, 0
	for _, a := range recent {
		if a.Category != category || a.Strategy != strategy {
			continue
		}
		attempts++
		if !a.Success {
			failures++
		}
	}
	if attempts == 0 {
		return 0
	}
	return 0.5 * float64(failures) / float64(attempts)
}

func (e *Engine) append(ctx context.Context, a Attempt) {
	if err := e.history.Append(ctx, a); err != nil {
		e.logger.Warn("appending recovery history", "error", err)
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(events.TopicRecovery, ev)
	}
}
