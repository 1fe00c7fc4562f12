package chain

import (
	"fmt"
	"strings"
)

// NodeKind identifies the variant of a command node.
type NodeKind string

const (
	KindAction      NodeKind = "action"
	KindConditional NodeKind = "conditional"
	KindLoop        NodeKind = "loop"
)

// NodeStatus is the lifecycle state of a node. Pending is initial;
// Completed, Failed, and Skipped are terminal.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the status is one of the terminal states.
func (s NodeStatus) Terminal() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// Loop modes.
const (
	LoopCount = "count"
	LoopWhile = "while"
)

// Parameter keys recognized per node kind.
const (
	ParamCommand       = "command"        // action: raw command with ${var} placeholders
	ParamSaveAs        = "save_as"        // action: extra variable to store result data under
	ParamTimeout       = "timeout"        // action: per-node deadline, duration string
	ParamCondition     = "condition"      // conditional / loop(while): equality expression
	ParamMode          = "mode"           // loop: "count" or "while"
	ParamCount         = "count"          // loop(count): iteration count
	ParamMaxIterations = "max_iterations" // loop(while): termination ceiling
	ParamPromote       = "promote"        // loop: overlay variables merged back per iteration
)

// DefaultMaxIterations bounds while loops that never declare a ceiling.
const DefaultMaxIterations = 100

// NodeResult is the outcome record of a terminal node, set exactly once.
type NodeResult struct {
	Success      bool
	Data         any
	ErrorMessage string
	Strategy     string // recovery strategy that resolved the node, if any
	Warning      string // non-fatal diagnostics, e.g. a loop hitting its ceiling
	Narrative    string // recovery attempt narrative, for operator audit
}

// CommandNode is a single unit of work in a chain. The Kind field selects the
// variant; branch and body lists are only meaningful for the kinds that own
// them. Node ids are unique and stable for one chain invocation.
type CommandNode struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	Parameters map[string]any `json:"parameters,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`

	// Conditional variant.
	ThenBranch []*CommandNode `json:"then_branch,omitempty"`
	ElseBranch []*CommandNode `json:"else_branch,omitempty"`

	// Loop variant.
	Body []*CommandNode `json:"body,omitempty"`

	Status NodeStatus  `json:"-"`
	Result *NodeResult `json:"-"`
}

// setResult transitions the node to a terminal status and records its
// outcome. The first terminal transition wins; later calls are ignored.
func (n *CommandNode) setResult(status NodeStatus, res NodeResult) {
	if n.Result != nil {
		return
	}
	n.Status = status
	n.Result = &res
}

// reset returns the node and all nested nodes to their initial state.
// Loop bodies are re-executed per iteration and need this between runs.
func (n *CommandNode) reset() {
	n.Status = NodePending
	n.Result = nil
	for _, child := range n.children() {
		child.reset()
	}
}

// children returns all nested nodes across branches and body.
func (n *CommandNode) children() []*CommandNode {
	out := make([]*CommandNode, 0, len(n.ThenBranch)+len(n.ElseBranch)+len(n.Body))
	out = append(out, n.ThenBranch...)
	out = append(out, n.ElseBranch...)
	out = append(out, n.Body...)
	return out
}

// stringParam returns a string-valued parameter, or "" if absent.
func (n *CommandNode) stringParam(key string) string {
	v, ok := n.Parameters[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	return s
}

// intParam returns an integer-valued parameter. JSON numbers arrive as
// float64, so both representations are accepted.
func (n *CommandNode) intParam(key string, def int) int {
	v, ok := n.Parameters[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return def
	}
}

// stringsParam returns a string-slice parameter, accepting both []string and
// the []any produced by JSON decoding.
func (n *CommandNode) stringsParam(key string) []string {
	v, ok := n.Parameters[key]
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}

// outputVars returns the variable names this node writes on completion.
// Used for the same-round overlap check and runtime write locking.
func (n *CommandNode) outputVars() []string {
	vars := []string{resultVar(n.ID)}
	if saveAs := n.stringParam(ParamSaveAs); saveAs != "" {
		vars = append(vars, saveAs)
	}
	return vars
}

// validate checks the node's kind-specific shape. Branch and body lists are
// validated recursively; dependency references are checked at the chain
// level, not here.
func (n *CommandNode) validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("node has empty id")
	}

	switch n.Kind {
	case KindAction:
		if n.stringParam(ParamCommand) == "" {
			return fmt.Errorf("action node %q has no %q parameter", n.ID, ParamCommand)
		}
		if len(n.ThenBranch) > 0 || len(n.ElseBranch) > 0 || len(n.Body) > 0 {
			return fmt.Errorf("action node %q must not own nested node lists", n.ID)
		}
	case KindConditional:
		cond := n.stringParam(ParamCondition)
		if cond == "" {
			return fmt.Errorf("conditional node %q has no %q parameter", n.ID, ParamCondition)
		}
		if err := validateConditionSyntax(cond); err != nil {
			return fmt.Errorf("conditional node %q: %w", n.ID, err)
		}
		if len(n.ThenBranch) == 0 && len(n.ElseBranch) == 0 {
			return fmt.Errorf("conditional node %q has neither then nor else branch", n.ID)
		}
		if len(n.Body) > 0 {
			return fmt.Errorf("conditional node %q must not own a loop body", n.ID)
		}
	case KindLoop:
		if len(n.Body) == 0 {
			return fmt.Errorf("loop node %q has an empty body", n.ID)
		}
		if len(n.ThenBranch) > 0 || len(n.ElseBranch) > 0 {
			return fmt.Errorf("loop node %q must not own branches", n.ID)
		}
		switch mode := n.stringParam(ParamMode); mode {
		case LoopCount:
			if n.intParam(ParamCount, -1) < 0 {
				return fmt.Errorf("loop node %q needs a non-negative %q parameter", n.ID, ParamCount)
			}
		case LoopWhile:
			cond := n.stringParam(ParamCondition)
			if cond == "" {
				return fmt.Errorf("while loop node %q has no %q parameter", n.ID, ParamCondition)
			}
			if err := validateConditionSyntax(cond); err != nil {
				return fmt.Errorf("while loop node %q: %w", n.ID, err)
			}
		default:
			return fmt.Errorf("loop node %q has unknown mode %q", n.ID, mode)
		}
	default:
		return fmt.Errorf("node %q has unknown kind %q", n.ID, n.Kind)
	}

	for _, child := range n.children() {
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}

// resultVar is the context variable name holding a node's outcome data.
func resultVar(nodeID string) string {
	return "result_" + nodeID
}
