package chain

import (
	"sort"
	"sync"
)

// VarLockManager provides per-variable mutual exclusion for nodes running in
// the same scheduling round. The overlap check at build time rejects two
// concurrent nodes declaring the same output variable; these locks are the
// runtime backstop for outputs that only become known after substitution.
type VarLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewVarLockManager creates an empty VarLockManager.
func NewVarLockManager() *VarLockManager {
	return &VarLockManager{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for one variable name, creating it on first use.
func (m *VarLockManager) Lock(name string) {
	m.mu.Lock()
	l, ok := m.locks[name]
	if !ok {
		l = &sync.Mutex{}
		m.locks[name] = l
	}
	m.mu.Unlock()

	// Acquire outside the manager lock to avoid serializing unrelated names.
	l.Lock()
}

// Unlock releases the mutex for one variable name.
func (m *VarLockManager) Unlock(name string) {
	m.mu.Lock()
	l, ok := m.locks[name]
	m.mu.Unlock()

	if ok {
		l.Unlock()
	}
}

// LockAll acquires locks for all given names in sorted order. Sorting before
// acquisition prevents deadlocks between nodes locking overlapping sets.
func (m *VarLockManager) LockAll(names []string) {
	if len(names) == 0 {
		return
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	for _, name := range sorted {
		m.Lock(name)
	}
}

// UnlockAll releases locks for all given names.
func (m *VarLockManager) UnlockAll(names []string) {
	if len(names) == 0 {
		return
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		m.Unlock(sorted[i])
	}
}
