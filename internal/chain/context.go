package chain

import (
	"sync"
	"time"

	"github.com/aristath/chainflow/internal/action"
)

// historyWindowSize caps the rolling window of recently executed commands.
const historyWindowSize = 10

// CommandEntry records one executed command for the rolling history window.
type CommandEntry struct {
	NodeID    string
	Command   string
	Success   bool
	Timestamp time.Time
}

// ExecutionContext is the shared variable/capability bag threaded through
// node execution. One context is created per top-level chain invocation and
// shared by reference across nested branch and loop executions. Loop
// iterations read through a shallow overlay (see Overlay) so iteration-local
// writes do not leak into the parent scope.
type ExecutionContext struct {
	mu     sync.RWMutex
	vars   map[string]any
	parent *ExecutionContext

	// Shared engine state. Overlays alias these fields from the root context.
	executor        action.Executor
	continueOnError bool
	locks           *VarLockManager
	history         *commandWindow
	screenRef       string
}

// NewContext creates a root execution context with the given initial
// variables and action executor capability.
func NewContext(executor action.Executor, initial map[string]any) *ExecutionContext {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &ExecutionContext{
		vars:     vars,
		executor: executor,
		locks:    NewVarLockManager(),
		history:  newCommandWindow(historyWindowSize),
	}
}

// Executor returns the action-executor capability.
func (c *ExecutionContext) Executor() action.Executor { return c.executor }

// ContinueOnError reports whether branch/loop sequences proceed past a
// failing node.
func (c *ExecutionContext) ContinueOnError() bool { return c.continueOnError }

// SetContinueOnError sets the continue-on-error flag.
func (c *ExecutionContext) SetContinueOnError(v bool) { c.continueOnError = v }

// SetScreenRef records a reference to the most recent screen/state snapshot,
// supplied by the surrounding application. It travels into error snapshots.
func (c *ExecutionContext) SetScreenRef(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenRef = ref
}

// ScreenRef returns the current screen/state snapshot reference.
func (c *ExecutionContext) ScreenRef() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.screenRef
}

// SetVar stores a variable. On an overlay the write stays in the overlay.
func (c *ExecutionContext) SetVar(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

// DeleteVar removes a variable from the current scope. On an overlay the
// parent's value, if any, becomes visible again.
func (c *ExecutionContext) DeleteVar(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vars, name)
}

// Var looks up a variable, falling through overlay scopes to the parent.
func (c *ExecutionContext) Var(name string) (any, bool) {
	c.mu.RLock()
	v, ok := c.vars[name]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	if c.parent != nil {
		return c.parent.Var(name)
	}
	return nil, false
}

// Snapshot returns a flattened copy of all visible variables, with overlay
// values shadowing parent values.
func (c *ExecutionContext) Snapshot() map[string]any {
	var snap map[string]any
	if c.parent != nil {
		snap = c.parent.Snapshot()
	} else {
		snap = make(map[string]any)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.vars {
		snap[k] = v
	}
	return snap
}

// Overlay creates a child scope for one loop iteration. Reads fall through
// to the parent; writes stay local until explicitly promoted. Capabilities
// and the command history remain shared with the root context.
func (c *ExecutionContext) Overlay() *ExecutionContext {
	return &ExecutionContext{
		vars:            make(map[string]any),
		parent:          c,
		executor:        c.executor,
		continueOnError: c.continueOnError,
		locks:           c.locks,
		history:         c.history,
	}
}

// Promote copies the named overlay variables into the parent scope. Calling
// Promote on a root context is a no-op.
func (c *ExecutionContext) Promote(names []string) {
	if c.parent == nil {
		return
	}
	c.mu.RLock()
	values := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := c.vars[name]; ok {
			values[name] = v
		}
	}
	c.mu.RUnlock()

	for name, v := range values {
		c.parent.SetVar(name, v)
	}
}

// RecordCommand appends an executed command to the rolling history window.
func (c *ExecutionContext) RecordCommand(nodeID, command string, success bool) {
	c.history.add(CommandEntry{
		NodeID:    nodeID,
		Command:   command,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// RecentCommands returns the most recent executed commands, oldest first.
func (c *ExecutionContext) RecentCommands() []CommandEntry {
	return c.history.entries()
}

func (c *ExecutionContext) lockManager() *VarLockManager { return c.locks }

// commandWindow is a count-capped rolling window of executed commands.
type commandWindow struct {
	mu    sync.Mutex
	max   int
	items []CommandEntry
}

func newCommandWindow(max int) *commandWindow {
	return &commandWindow{max: max}
}

func (w *commandWindow) add(e CommandEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, e)
	if len(w.items) > w.max {
		w.items = w.items[len(w.items)-w.max:]
	}
}

func (w *commandWindow) entries() []CommandEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]CommandEntry, len(w.items))
	copy(out, w.items)
	return out
}
