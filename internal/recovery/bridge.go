package recovery

import (
	"context"

	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/diagnose"
)

// Hook adapts a classifier plus engine into the chain executor's recovery
// callback: classify the failure, build the state snapshot from the live
// context, then let the engine pick and run strategies.
func Hook(classifier *diagnose.Classifier, engine *Engine) chain.RecoverFunc {
	return func(ctx context.Context, failure chain.Failure, ec *chain.ExecutionContext) chain.RecoveryOutcome {
		rec := classifier.Classify(failure.Message, "", snapshotFrom(failure, ec))
		out := engine.Recover(ctx, rec, ec)
		return chain.RecoveryOutcome{
			Resolved:  out.Success,
			Strategy:  out.Strategy,
			Narrative: out.Narrative,
			Data:      out.Data,
		}
	}
}

// snapshotFrom assembles the failure-time snapshot: the unresolved command
// template, the current screen reference, the rolling command history, and
// any resource-usage figures published as context variables.
func snapshotFrom(failure chain.Failure, ec *chain.ExecutionContext) diagnose.Snapshot {
	var recent []string
	for _, entry := range ec.RecentCommands() {
		recent = append(recent, entry.Command)
	}

	resources := make(map[string]float64)
	for _, key := range []string{"cpu_percent", "memory_percent", "disk_percent"} {
		if v, ok := ec.Var(key); ok {
			switch x := v.(type) {
			case float64:
				resources[key] = x
			case int:
				resources[key] = float64(x)
			}
		}
	}

	return diagnose.Snapshot{
		RawCommand:     failure.RawCommand,
		ScreenRef:      ec.ScreenRef(),
		RecentCommands: recent,
		Resources:      resources,
	}
}
