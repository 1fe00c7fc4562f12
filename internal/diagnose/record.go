package diagnose

import (
	"time"
)

// Category is the closed set of failure classifications.
type Category string

const (
	CategoryElementNotFound          Category = "element_not_found"
	CategoryTimeout                  Category = "timeout"
	CategoryPermissionDenied         Category = "permission_denied"
	CategoryApplicationNotResponding Category = "application_not_responding"
	CategoryInvalidState             Category = "invalid_state"
	CategoryResourceUnavailable      Category = "resource_unavailable"
	CategoryCommandSyntax            Category = "command_syntax"
	CategoryExecutionFailure         Category = "execution_failure"
	CategorySystemError              Category = "system_error"
	CategoryAPIError                 Category = "api_error"
	CategoryUnknown                  Category = "unknown"
)

// Severity grades how serious a classified failure is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityFatal
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Snapshot captures the execution state at failure time. RawCommand is the
// failing node's command; ScreenRef points at the screen/state snapshot
// owned by the surrounding application; RecentCommands is the rolling
// command history; Resources carries auxiliary usage figures (percentages)
// when the caller has them.
type Snapshot struct {
	RawCommand     string
	ScreenRef      string
	RecentCommands []string
	Resources      map[string]float64
}

// ErrorRecord is a classified failure. Category and Severity are a pure
// function of the message/stack inputs; Diagnosis and PotentialCauses may be
// refined from the snapshot, but the category never changes once matched.
type ErrorRecord struct {
	ID              string
	Message         string
	Category        Category
	Severity        Severity
	Snapshot        Snapshot
	Diagnosis       string
	PotentialCauses []string
	Signature       uint64
	Resolved        bool
	StrategyUsed    string
	CreatedAt       time.Time
}
