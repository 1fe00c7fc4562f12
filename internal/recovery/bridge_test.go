package recovery

import (
	"context"
	"testing"

	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/diagnose"
)

// TestHookEndToEnd: a failure flows through classification, strategy
// selection, and command reissue back into a chain recovery outcome.
func TestHookEndToEnd(t *testing.T) {
	exec := &recordingExecutor{data: "clicked"}
	ec := chain.NewContext(exec, map[string]any{"target": "retry_button"})

	engine := NewEngine(BuiltinStrategies(fastRetry()), EngineConfig{})
	hook := Hook(diagnose.NewClassifier(), engine)

	out := hook(context.Background(), chain.Failure{
		NodeID:     "A",
		RawCommand: "click ${target}",
		Command:    "click retry_button",
		Message:    "element not found: retry_button",
	}, ec)

	if !out.Resolved {
		t.Fatalf("outcome = %+v", out)
	}
	// Element-not-found routes to the rederive strategy, not plain retry.
	if out.Strategy != "alternative-target" {
		t.Errorf("strategy = %q, want alternative-target", out.Strategy)
	}
	if out.Data != "clicked" {
		t.Errorf("data = %v, want clicked", out.Data)
	}

	got := exec.executed()
	if len(got) != 1 || got[0] != "click retry_button" {
		t.Errorf("executed = %v", got)
	}
}

func TestHookUnrecoverableCategory(t *testing.T) {
	exec := &recordingExecutor{}
	ec := chain.NewContext(exec, nil)

	engine := NewEngine(BuiltinStrategies(fastRetry()), EngineConfig{})
	hook := Hook(diagnose.NewClassifier(), engine)

	out := hook(context.Background(), chain.Failure{
		NodeID:     "A",
		RawCommand: "clck button",
		Command:    "clck button",
		Message:    "unknown command: clck",
	}, ec)

	if out.Resolved {
		t.Fatal("syntax error must not be recoverable by retrying")
	}
	if len(exec.executed()) != 0 {
		t.Errorf("commands reissued for a syntax error: %v", exec.executed())
	}
}

func TestSnapshotFrom(t *testing.T) {
	exec := &recordingExecutor{}
	ec := chain.NewContext(exec, map[string]any{
		"cpu_percent":    95.0,
		"memory_percent": 40,
		"unrelated":      "ignored",
	})
	ec.SetScreenRef("screen-7")
	ec.RecordCommand("n1", "open menu", true)
	ec.RecordCommand("n2", "click item", false)

	snap := snapshotFrom(chain.Failure{RawCommand: "click ${x}"}, ec)

	if snap.RawCommand != "click ${x}" {
		t.Errorf("raw command = %q", snap.RawCommand)
	}
	if snap.ScreenRef != "screen-7" {
		t.Errorf("screen ref = %q", snap.ScreenRef)
	}
	if len(snap.RecentCommands) != 2 || snap.RecentCommands[1] != "click item" {
		t.Errorf("recent commands = %v", snap.RecentCommands)
	}
	if snap.Resources["cpu_percent"] != 95 || snap.Resources["memory_percent"] != 40 {
		t.Errorf("resources = %v", snap.Resources)
	}
	if _, ok := snap.Resources["unrelated"]; ok {
		t.Error("non-resource variable captured")
	}
}
