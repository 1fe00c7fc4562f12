package chain

import (
	"fmt"
	"sync"
	"testing"
)

func TestContextVars(t *testing.T) {
	ec := NewContext(nil, map[string]any{"a": 1})

	if v, ok := ec.Var("a"); !ok || v != 1 {
		t.Errorf("Var(a) = %v, %v", v, ok)
	}
	if _, ok := ec.Var("missing"); ok {
		t.Error("missing variable reported present")
	}

	ec.SetVar("b", "two")
	if v, _ := ec.Var("b"); v != "two" {
		t.Errorf("Var(b) = %v", v)
	}
}

func TestContextDeleteVar(t *testing.T) {
	ec := NewContext(nil, map[string]any{"a": 1})

	ec.DeleteVar("a")
	if _, ok := ec.Var("a"); ok {
		t.Error("deleted variable still present")
	}
	if got := resolvePlaceholders("x=${a}", ec); got != "x=" {
		t.Errorf("resolved %q, want empty substitution", got)
	}

	// Deleting in an overlay uncovers the parent value.
	root := NewContext(nil, map[string]any{"shared": "root"})
	overlay := root.Overlay()
	overlay.SetVar("shared", "overlay")
	overlay.DeleteVar("shared")
	if v, _ := overlay.Var("shared"); v != "root" {
		t.Errorf("Var(shared) after overlay delete = %v, want root", v)
	}
}

func TestContextOverlay(t *testing.T) {
	root := NewContext(nil, map[string]any{"shared": "root", "base": 1})
	overlay := root.Overlay()

	// Reads fall through to the parent.
	if v, _ := overlay.Var("base"); v != 1 {
		t.Errorf("overlay read-through = %v", v)
	}

	// Writes shadow without touching the parent.
	overlay.SetVar("shared", "overlay")
	if v, _ := overlay.Var("shared"); v != "overlay" {
		t.Errorf("overlay Var(shared) = %v", v)
	}
	if v, _ := root.Var("shared"); v != "root" {
		t.Errorf("overlay write leaked to parent: %v", v)
	}

	// New overlay variables stay invisible to the parent.
	overlay.SetVar("local", true)
	if _, ok := root.Var("local"); ok {
		t.Error("overlay-local variable visible in parent")
	}
}

func TestContextPromote(t *testing.T) {
	root := NewContext(nil, map[string]any{"keep": "old"})
	overlay := root.Overlay()
	overlay.SetVar("keep", "new")
	overlay.SetVar("drop", "never")

	overlay.Promote([]string{"keep", "absent"})

	if v, _ := root.Var("keep"); v != "new" {
		t.Errorf("promoted value = %v, want new", v)
	}
	if _, ok := root.Var("drop"); ok {
		t.Error("unpromoted variable reached the parent")
	}

	// Promote on a root context is a no-op.
	root.Promote([]string{"keep"})
}

func TestContextSnapshot(t *testing.T) {
	root := NewContext(nil, map[string]any{"a": 1, "b": "root"})
	overlay := root.Overlay()
	overlay.SetVar("b", "overlay")
	overlay.SetVar("c", true)

	snap := overlay.Snapshot()
	if snap["a"] != 1 || snap["b"] != "overlay" || snap["c"] != true {
		t.Errorf("snapshot = %v", snap)
	}

	// Snapshot is a copy.
	snap["a"] = 99
	if v, _ := root.Var("a"); v != 1 {
		t.Error("snapshot mutation reached the context")
	}
}

func TestCommandWindowCap(t *testing.T) {
	ec := NewContext(nil, nil)
	for i := 0; i < historyWindowSize+5; i++ {
		ec.RecordCommand("n", fmt.Sprintf("cmd %d", i), true)
	}

	got := ec.RecentCommands()
	if len(got) != historyWindowSize {
		t.Fatalf("window size = %d, want %d", len(got), historyWindowSize)
	}
	if got[0].Command != "cmd 5" {
		t.Errorf("oldest retained = %q, want cmd 5", got[0].Command)
	}
	if got[len(got)-1].Command != fmt.Sprintf("cmd %d", historyWindowSize+4) {
		t.Errorf("newest retained = %q", got[len(got)-1].Command)
	}
}

func TestVarLockManagerOrdering(t *testing.T) {
	m := NewVarLockManager()

	// Two goroutines locking overlapping sets in different input orders
	// must not deadlock.
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 2; i++ {
		names := []string{"a", "b", "c"}
		if i == 1 {
			names = []string{"c", "b", "a"}
		}
		wg.Add(1)
		go func(names []string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.LockAll(names)
				counter++
				m.UnlockAll(names)
			}
		}(names)
	}
	wg.Wait()

	if counter != 200 {
		t.Errorf("counter = %d, want 200", counter)
	}
}
