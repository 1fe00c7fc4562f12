package events

import "time"

// Event is the base interface for all chain telemetry events.
type Event interface {
	EventType() string
	NodeID() string
}

// Topic constants.
const (
	TopicNode     = "node"
	TopicChain    = "chain"
	TopicRecovery = "recovery"
)

// Event type constants.
const (
	EventTypeNodeStarted       = "node.started"
	EventTypeNodeCompleted     = "node.completed"
	EventTypeNodeFailed        = "node.failed"
	EventTypeNodeSkipped       = "node.skipped"
	EventTypeNodeRecovered     = "node.recovered"
	EventTypeChainProgress     = "chain.progress"
	EventTypeRecoveryAttempted = "recovery.attempted"
)

// NodeStarted is published when a node begins execution.
type NodeStarted struct {
	ID        string
	Kind      string
	Timestamp time.Time
}

func (e NodeStarted) EventType() string { return EventTypeNodeStarted }
func (e NodeStarted) NodeID() string    { return e.ID }

// NodeCompleted is published when a node reaches Completed.
type NodeCompleted struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e NodeCompleted) EventType() string { return EventTypeNodeCompleted }
func (e NodeCompleted) NodeID() string    { return e.ID }

// NodeFailed is published when a node reaches Failed, after any recovery
// attempt has been exhausted.
type NodeFailed struct {
	ID        string
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

func (e NodeFailed) EventType() string { return EventTypeNodeFailed }
func (e NodeFailed) NodeID() string    { return e.ID }

// NodeSkipped is published when a node is skipped because a dependency did
// not complete or the chain deadline expired.
type NodeSkipped struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e NodeSkipped) EventType() string { return EventTypeNodeSkipped }
func (e NodeSkipped) NodeID() string    { return e.ID }

// NodeRecovered is published when a failed node is resolved by a recovery
// strategy and considered completed.
type NodeRecovered struct {
	ID        string
	Strategy  string
	Timestamp time.Time
}

func (e NodeRecovered) EventType() string { return EventTypeNodeRecovered }
func (e NodeRecovered) NodeID() string    { return e.ID }

// ChainProgress is published after each scheduling round.
type ChainProgress struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e ChainProgress) EventType() string { return EventTypeChainProgress }
func (e ChainProgress) NodeID() string    { return "" }

// RecoveryAttempted is published once per strategy attempt.
type RecoveryAttempted struct {
	ID        string // failing node id
	Category  string
	Strategy  string
	Success   bool
	Timestamp time.Time
}

func (e RecoveryAttempted) EventType() string { return EventTypeRecoveryAttempted }
func (e RecoveryAttempted) NodeID() string    { return e.ID }
