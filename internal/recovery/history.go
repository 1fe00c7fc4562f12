package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/chainflow/internal/diagnose"
)

// DefaultHistoryCap bounds the in-memory history ring.
const DefaultHistoryCap = 256

// Attempt is one append-only recovery history record, queryable read-only
// for external telemetry.
type Attempt struct {
	Category  diagnose.Category `json:"error_category"`
	Strategy  string            `json:"strategy_name"`
	Success   bool              `json:"success"`
	Signature uint64            `json:"signature,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// History records recovery attempts and serves recent ones back for scoring
// bias and telemetry.
type History interface {
	Append(ctx context.Context, a Attempt) error
	// Recent returns up to limit of the newest attempts in chronological
	// order (oldest first). limit <= 0 means all retained attempts.
	Recent(ctx context.Context, limit int) ([]Attempt, error)
}

// RingHistory is the default History: an in-memory ring capped at a fixed
// number of entries, oldest evicted first.
type RingHistory struct {
	mu       sync.Mutex
	capacity int
	attempts []Attempt
}

// NewRingHistory creates a RingHistory. capacity <= 0 uses DefaultHistoryCap.
func NewRingHistory(capacity int) *RingHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &RingHistory{capacity: capacity}
}

// Append records an attempt, evicting the oldest entry at capacity.
func (h *RingHistory) Append(_ context.Context, a Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, a)
	if len(h.attempts) > h.capacity {
		h.attempts = h.attempts[len(h.attempts)-h.capacity:]
	}
	return nil
}

// Recent returns the newest attempts in chronological order.
func (h *RingHistory) Recent(_ context.Context, limit int) ([]Attempt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.attempts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Attempt, n)
	copy(out, h.attempts[len(h.attempts)-n:])
	return out, nil
}
