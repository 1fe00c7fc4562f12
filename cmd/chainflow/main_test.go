package main

import (
	"strings"
	"testing"

	"github.com/aristath/chainflow/internal/chain"
	"github.com/aristath/chainflow/internal/recovery"
)

func TestVarFlags(t *testing.T) {
	v := varFlags{}

	if err := v.Set("env=prod"); err != nil {
		t.Fatal(err)
	}
	if err := v.Set("target=button=with=equals"); err != nil {
		t.Fatal(err)
	}
	if v["env"] != "prod" {
		t.Errorf("env = %q", v["env"])
	}
	// Only the first '=' separates key from value.
	if v["target"] != "button=with=equals" {
		t.Errorf("target = %q", v["target"])
	}

	if err := v.Set("novalue"); err == nil {
		t.Error("missing '=' accepted")
	}
	if err := v.Set("=orphan"); err == nil {
		t.Error("empty key accepted")
	}
}

func TestEnabledStrategies(t *testing.T) {
	all := recovery.BuiltinStrategies(recovery.RetryConfig{})

	kept := enabledStrategies(all, nil)
	if len(kept) != len(all) {
		t.Errorf("nil disable list changed the registry: %d vs %d", len(kept), len(all))
	}

	kept = enabledStrategies(recovery.BuiltinStrategies(recovery.RetryConfig{}),
		[]string{"resource-wait", "app-refocus-restart"})
	if len(kept) != len(all)-2 {
		t.Fatalf("kept %d strategies, want %d", len(kept), len(all)-2)
	}
	for _, s := range kept {
		if s.Name == "resource-wait" || s.Name == "app-refocus-restart" {
			t.Errorf("disabled strategy %q survived", s.Name)
		}
	}
}

func TestPrintResult(t *testing.T) {
	t.Run("structural error", func(t *testing.T) {
		var sb strings.Builder
		printResult(&sb, chain.ChainResult{Error: "duplicate node id \"A\""})
		if !strings.Contains(sb.String(), "chain rejected") {
			t.Errorf("output = %q", sb.String())
		}
	})

	t.Run("per-node breakdown", func(t *testing.T) {
		var sb strings.Builder
		printResult(&sb, chain.ChainResult{
			Success: false,
			Results: map[string]chain.NodeOutcome{
				"fetch":  {Success: true, Status: chain.NodeCompleted},
				"deploy": {Status: chain.NodeFailed, Error: "exit status 1", Warning: "recovery exhausted"},
				"notify": {Status: chain.NodeSkipped, Error: `skipped: dependency "deploy" did not complete`},
			},
		})
		out := sb.String()
		for _, want := range []string{"fetch", "completed", "deploy", "failed", "exit status 1", "recovery exhausted", "skipped", "chain failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("success summary", func(t *testing.T) {
		var sb strings.Builder
		printResult(&sb, chain.ChainResult{
			Success: true,
			Results: map[string]chain.NodeOutcome{
				"fetch": {Success: true, Status: chain.NodeCompleted, Strategy: "retry-with-delay"},
			},
		})
		out := sb.String()
		if !strings.Contains(out, "chain completed") {
			t.Errorf("output = %q", out)
		}
		if !strings.Contains(out, "recovered via retry-with-delay") {
			t.Errorf("recovery note missing: %q", out)
		}
	})
}
