package diagnose

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// rule is one classification entry: the first rule whose pattern matches the
// combined message and stack text wins.
type rule struct {
	pattern  *regexp.Regexp
	category Category
	severity Severity
	causes   []string
}

// Classifier maps raw failures to error records using an ordered rule list.
// The zero rule set always ends with an unconditional catch-all, so every
// failure classifies to something.
type Classifier struct {
	rules []rule
}

// NewClassifier creates a Classifier with the built-in rule set.
func NewClassifier() *Classifier {
	return &Classifier{rules: defaultRules()}
}

func defaultRules() []rule {
	return []rule{
		{
			pattern:  regexp.MustCompile(`(?i)element not found|no such element|could not (locate|find) (the )?(element|target)|target not found`),
			category: CategoryElementNotFound,
			severity: SeverityMedium,
			causes: []string{
				"UI element moved or was renamed since the last screenshot",
				"target application is showing a different screen",
				"element identifier is stale",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)timed?\s?out|deadline exceeded|timeout`),
			category: CategoryTimeout,
			severity: SeverityMedium,
			causes: []string{
				"operation needs more time than the configured deadline",
				"system under heavy load",
				"target application is slow to respond",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)permission denied|access (is )?denied|not permitted|operation not allowed|unauthorized`),
			category: CategoryPermissionDenied,
			severity: SeverityHigh,
			causes: []string{
				"missing privileges for the requested operation",
				"accessibility or automation permission not granted",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)not responding|application (is )?(hung|frozen)|no response from`),
			category: CategoryApplicationNotResponding,
			severity: SeverityHigh,
			causes: []string{
				"application event loop is blocked",
				"application is busy with a long-running task",
				"application crashed without exiting",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)invalid state|unexpected state|wrong state|state mismatch`),
			category: CategoryInvalidState,
			severity: SeverityMedium,
			causes: []string{
				"previous step left the application in an unexpected screen",
				"external change happened between steps",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)resource (temporarily )?unavailable|circuit breaker open|out of memory|no space left|too many open files|resource busy`),
			category: CategoryResourceUnavailable,
			severity: SeverityHigh,
			causes: []string{
				"system resource exhausted",
				"memory exhaustion",
				"resource held by another process",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)syntax error|could not parse|malformed command|invalid command|unknown command`),
			category: CategoryCommandSyntax,
			severity: SeverityLow,
			causes: []string{
				"command string is malformed",
				"placeholder substitution produced an invalid command",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)api error|rate limit|status code 4\d\d|status code 5\d\d|service unavailable`),
			category: CategoryAPIError,
			severity: SeverityMedium,
			causes: []string{
				"upstream service rejected the request",
				"rate limiting in effect",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)system error|segmentation fault|signal: (killed|segv|abort)|kernel`),
			category: CategorySystemError,
			severity: SeverityHigh,
			causes: []string{
				"operating system level failure",
				"process terminated by a signal",
			},
		},
		{
			pattern:  regexp.MustCompile(`(?i)command failed|exit status \d+|execution failed|non-zero exit`),
			category: CategoryExecutionFailure,
			severity: SeverityMedium,
			causes: []string{
				"command ran but reported failure",
				"environment differs from what the command expects",
			},
		},
		{
			// Unconditional catch-all; must stay last.
			pattern:  regexp.MustCompile(``),
			category: CategoryUnknown,
			severity: SeverityMedium,
			causes: []string{
				"unrecognized failure",
			},
		},
	}
}

// Classify maps a raw failure to an ErrorRecord. Category and severity
// depend only on message and stack; the snapshot feeds enrichment of the
// diagnosis text and cause ordering.
func (c *Classifier) Classify(message, stack string, snap Snapshot) *ErrorRecord {
	text := message
	if stack != "" {
		text = message + "\n" + stack
	}

	rec := &ErrorRecord{
		ID:        uuid.NewString(),
		Message:   message,
		Snapshot:  snap,
		CreatedAt: time.Now(),
	}

	for _, r := range c.rules {
		if r.pattern.MatchString(text) {
			rec.Category = r.category
			rec.Severity = r.severity
			rec.PotentialCauses = append([]string(nil), r.causes...)
			break
		}
	}

	rec.Diagnosis = fmt.Sprintf("%s (%s): %s", rec.Category, rec.Severity, message)
	rec.Signature = computeSignature(rec.Category, message)
	c.enrich(rec)
	return rec
}

// enrich refines the diagnosis text and reorders potential causes from
// auxiliary snapshot state. The category is never changed here.
func (c *Classifier) enrich(rec *ErrorRecord) {
	res := rec.Snapshot.Resources
	if len(res) == 0 {
		return
	}

	switch rec.Category {
	case CategoryResourceUnavailable:
		if res["memory_percent"] >= 90 {
			rec.Diagnosis += fmt.Sprintf("; memory at %.0f%%, likely memory pressure", res["memory_percent"])
			promoteCause(rec, "memory exhaustion")
		}
	case CategoryTimeout:
		if res["cpu_percent"] >= 90 {
			rec.Diagnosis += fmt.Sprintf("; cpu at %.0f%%, system under heavy load", res["cpu_percent"])
			promoteCause(rec, "system under heavy load")
		}
	case CategoryApplicationNotResponding:
		if res["cpu_percent"] >= 90 {
			rec.Diagnosis += fmt.Sprintf("; cpu at %.0f%%, application likely busy", res["cpu_percent"])
			promoteCause(rec, "application is busy with a long-running task")
		}
	}
}

// promoteCause moves the named cause to the front of the list if present.
func promoteCause(rec *ErrorRecord, cause string) {
	for i, c := range rec.PotentialCauses {
		if c == cause {
			rec.PotentialCauses = append(
				[]string{cause},
				append(rec.PotentialCauses[:i:i], rec.PotentialCauses[i+1:]...)...,
			)
			return
		}
	}
}
