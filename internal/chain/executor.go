package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/chainflow/internal/events"
)

// NodeOutcome is the JSON-serializable per-node entry of a ChainResult.
type NodeOutcome struct {
	Success   bool       `json:"success"`
	Status    NodeStatus `json:"status"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
	Strategy  string     `json:"strategy,omitempty"`
	Warning   string     `json:"warning,omitempty"`
	Narrative string     `json:"recovery_narrative,omitempty"`
}

// ChainResult aggregates the outcome of one chain or sequence invocation.
// Results holds an entry per executed (or skipped) node, including nodes
// nested in branches and loop bodies; for loop bodies the entry reflects the
// last iteration. Error is set only for structural failures.
type ChainResult struct {
	Success bool                   `json:"success"`
	Results map[string]NodeOutcome `json:"results"`
	Error   string                 `json:"error,omitempty"`
}

// Failure describes a node execution failure handed to the recovery
// subsystem. RawCommand is the unresolved template so recovery can re-derive
// targets from fresh context state.
type Failure struct {
	NodeID     string
	RawCommand string
	Command    string
	Message    string
}

// RecoveryOutcome reports what the recovery subsystem did with a failure.
type RecoveryOutcome struct {
	Resolved  bool
	Strategy  string
	Narrative string
	Data      any
}

// RecoverFunc classifies a node failure and attempts remediation. It is
// injected by the caller; a nil RecoverFunc disables recovery.
type RecoverFunc func(ctx context.Context, failure Failure, ec *ExecutionContext) RecoveryOutcome

// Config configures an Executor.
type Config struct {
	Logger               *slog.Logger
	Bus                  *events.Bus // optional telemetry bus
	Recover              RecoverFunc // optional recovery hook
	Concurrency          int         // max concurrent nodes per round (default 4)
	DefaultActionTimeout time.Duration
}

// Executor runs command chains and sequences. One logical executor serves a
// chain invocation; nodes whose dependencies resolve in the same round run
// concurrently, and the round joins before the next begins.
type Executor struct {
	logger         *slog.Logger
	bus            *events.Bus
	recoverFn      RecoverFunc
	concurrency    int
	defaultTimeout time.Duration
}

// NewExecutor creates an Executor from cfg, applying defaults.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Executor{
		logger:         cfg.Logger,
		bus:            cfg.Bus,
		recoverFn:      cfg.Recover,
		concurrency:    cfg.Concurrency,
		defaultTimeout: cfg.DefaultActionTimeout,
	}
}

// ExecuteChain resolves inter-node dependencies and executes nodes in
// rounds. Structural problems (duplicate ids, unknown or cyclic
// dependencies, malformed conditions, output overlaps) fail the chain before
// any node runs. A node failure that recovery cannot resolve skips the
// node's dependents; chain success is the conjunction of all node successes.
func (e *Executor) ExecuteChain(ctx context.Context, nodes []*CommandNode, ec *ExecutionContext) ChainResult {
	d, err := newDAG(nodes)
	if err != nil {
		return ChainResult{Success: false, Results: map[string]NodeOutcome{}, Error: err.Error()}
	}
	if err := d.validate(); err != nil {
		return ChainResult{Success: false, Results: map[string]NodeOutcome{}, Error: err.Error()}
	}

	sink := newResultSink()
	chainErr := ""

	for {
		if ctx.Err() != nil {
			e.skipRemaining(d, sink, fmt.Sprintf("chain aborted: %v", ctx.Err()))
			chainErr = fmt.Sprintf("chain aborted: %v", ctx.Err())
			break
		}

		runnable, blocked := d.ready()
		if len(runnable) == 0 && len(blocked) == 0 {
			if stuck := d.pendingIDs(); len(stuck) > 0 {
				chainErr = stuckError(stuck).Error()
			}
			break
		}

		// A dependency that failed or was skipped poisons its dependents.
		for _, n := range blocked {
			dep := d.firstUnresolvedDep(n)
			reason := fmt.Sprintf("skipped: dependency %q did not complete", dep)
			n.setResult(NodeSkipped, NodeResult{Success: false, ErrorMessage: reason})
			sink.record(n)
			e.publish(events.TopicNode, events.NodeSkipped{ID: n.ID, Reason: reason, Timestamp: time.Now()})
		}

		if len(runnable) > 0 {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(e.concurrency)
			for _, n := range runnable {
				node := n
				g.Go(func() error {
					e.executeNode(gctx, node, ec, sink)
					return nil
				})
			}
			// Node failures are captured in results, not returned.
			_ = g.Wait()
		}

		total, completed, failed, skipped, pending := d.counts()
		e.publish(events.TopicChain, events.ChainProgress{
			Total: total, Completed: completed, Failed: failed,
			Skipped: skipped, Pending: pending, Timestamp: time.Now(),
		})
	}

	success := chainErr == ""
	for _, n := range d.all() {
		if n.Result == nil || !n.Result.Success {
			success = false
		}
	}
	return ChainResult{Success: success, Results: sink.snapshot(), Error: chainErr}
}

// ExecuteSequence runs nodes strictly in authored order, as used inside
// branches and loop bodies. On a failing node the sequence stops and the
// remaining nodes are skipped, unless the context's continue-on-error flag
// is set.
func (e *Executor) ExecuteSequence(ctx context.Context, nodes []*CommandNode, ec *ExecutionContext) ChainResult {
	for _, n := range nodes {
		if err := n.validate(); err != nil {
			return ChainResult{Success: false, Results: map[string]NodeOutcome{}, Error: err.Error()}
		}
	}
	resetNodes(nodes)
	sink := newResultSink()
	ok := e.runSequence(ctx, nodes, ec, sink)
	return ChainResult{Success: ok, Results: sink.snapshot()}
}

// runSequence executes a validated node list in order, recording outcomes
// into sink. Returns true only if every node succeeded.
func (e *Executor) runSequence(ctx context.Context, nodes []*CommandNode, ec *ExecutionContext, sink *resultSink) bool {
	success := true
	for i, n := range nodes {
		if ctx.Err() != nil {
			e.skipNodes(nodes[i:], sink, fmt.Sprintf("skipped: %v", ctx.Err()))
			return false
		}

		e.executeNode(ctx, n, ec, sink)

		if n.Result != nil && !n.Result.Success {
			success = false
			if !ec.ContinueOnError() {
				e.skipNodes(nodes[i+1:], sink, fmt.Sprintf("skipped: node %q failed", n.ID))
				return false
			}
		}
	}
	return success
}

// executeNode runs a single node to a terminal state, writes its result
// variable, and publishes telemetry.
func (e *Executor) executeNode(ctx context.Context, n *CommandNode, ec *ExecutionContext, sink *resultSink) {
	if n.Status.Terminal() {
		return
	}
	n.Status = NodeRunning
	start := time.Now()
	e.publish(events.TopicNode, events.NodeStarted{ID: n.ID, Kind: string(n.Kind), Timestamp: start})

	outputs := n.outputVars()
	ec.lockManager().LockAll(outputs)
	defer ec.lockManager().UnlockAll(outputs)

	var res NodeResult
	switch n.Kind {
	case KindAction:
		res = e.runAction(ctx, n, ec)
	case KindConditional:
		res = e.runConditional(ctx, n, ec, sink)
	case KindLoop:
		res = e.runLoop(ctx, n, ec, sink)
	default:
		res = NodeResult{Success: false, ErrorMessage: fmt.Sprintf("unknown node kind %q", n.Kind)}
	}

	status := NodeCompleted
	if !res.Success {
		status = NodeFailed
	}
	n.setResult(status, res)

	// Failed nodes store their error as result data so downstream
	// conditionals can branch on it.
	if res.Success {
		ec.SetVar(resultVar(n.ID), res.Data)
		if saveAs := n.stringParam(ParamSaveAs); saveAs != "" {
			ec.SetVar(saveAs, res.Data)
		}
	} else {
		ec.SetVar(resultVar(n.ID), res.ErrorMessage)
	}

	sink.record(n)

	if res.Success {
		if res.Strategy != "" {
			e.publish(events.TopicNode, events.NodeRecovered{ID: n.ID, Strategy: res.Strategy, Timestamp: time.Now()})
		}
		e.publish(events.TopicNode, events.NodeCompleted{ID: n.ID, Duration: time.Since(start), Timestamp: time.Now()})
	} else {
		e.publish(events.TopicNode, events.NodeFailed{ID: n.ID, Error: res.ErrorMessage, Duration: time.Since(start), Timestamp: time.Now()})
	}
}

// runAction resolves placeholders, invokes the action executor with the
// node's deadline, and routes failures through the recovery hook.
func (e *Executor) runAction(ctx context.Context, n *CommandNode, ec *ExecutionContext) NodeResult {
	raw := n.stringParam(ParamCommand)
	command := resolvePlaceholders(raw, ec)

	timeout := e.defaultTimeout
	if t := n.stringParam(ParamTimeout); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := ec.Executor().Execute(actx, command)
	failMsg := ""
	switch {
	case err != nil:
		failMsg = err.Error()
	case !result.Success:
		failMsg = result.ErrorMessage
		if failMsg == "" {
			failMsg = "action failed"
		}
	}
	ec.RecordCommand(n.ID, command, failMsg == "")

	if failMsg == "" {
		return NodeResult{Success: true, Data: result.Data}
	}

	e.logger.Warn("action failed", "node", n.ID, "command", command, "error", failMsg)

	if e.recoverFn == nil {
		return NodeResult{Success: false, ErrorMessage: failMsg}
	}

	outcome := e.recoverFn(ctx, Failure{
		NodeID:     n.ID,
		RawCommand: raw,
		Command:    command,
		Message:    failMsg,
	}, ec)

	if outcome.Resolved {
		return NodeResult{Success: true, Data: outcome.Data, Strategy: outcome.Strategy, Narrative: outcome.Narrative}
	}
	return NodeResult{Success: false, ErrorMessage: failMsg, Warning: "recovery exhausted", Narrative: outcome.Narrative}
}

// runConditional evaluates the node's condition and executes the matching
// branch as a nested sequence sharing the same context.
func (e *Executor) runConditional(ctx context.Context, n *CommandNode, ec *ExecutionContext, sink *resultSink) NodeResult {
	matched, err := evalCondition(n.stringParam(ParamCondition), ec)
	if err != nil {
		return NodeResult{Success: false, ErrorMessage: fmt.Sprintf("condition error: %v", err)}
	}

	branch := n.ThenBranch
	branchName := "then"
	if !matched {
		branch = n.ElseBranch
		branchName = "else"
	}

	if len(branch) == 0 {
		return NodeResult{Success: true, Data: branchName}
	}
	if ok := e.runSequence(ctx, branch, ec, sink); !ok {
		return NodeResult{Success: false, Data: branchName, ErrorMessage: fmt.Sprintf("%s branch failed", branchName)}
	}
	return NodeResult{Success: true, Data: branchName}
}

// runLoop executes the body as nested sequences, one shallow variable
// overlay per iteration. Count mode runs exactly N iterations; while mode
// re-evaluates its condition before each iteration and stops with a warning
// at the iteration ceiling.
func (e *Executor) runLoop(ctx context.Context, n *CommandNode, ec *ExecutionContext, sink *resultSink) NodeResult {
	promote := n.stringsParam(ParamPromote)
	mode := n.stringParam(ParamMode)

	iterations := 0
	success := true
	warning := ""

	runIteration := func(i int) bool {
		resetNodes(n.Body)
		overlay := ec.Overlay()
		overlay.SetVar("loop_index", i)
		ok := e.runSequence(ctx, n.Body, overlay, sink)
		overlay.Promote(promote)
		iterations++
		return ok
	}

	switch mode {
	case LoopCount:
		count := n.intParam(ParamCount, 0)
		for i := 0; i < count; i++ {
			if ctx.Err() != nil {
				return NodeResult{Success: false, Data: iterations, ErrorMessage: fmt.Sprintf("loop aborted: %v", ctx.Err())}
			}
			if ok := runIteration(i); !ok {
				success = false
				if !ec.ContinueOnError() {
					break
				}
			}
		}
	case LoopWhile:
		maxIter := n.intParam(ParamMaxIterations, DefaultMaxIterations)
		cond := n.stringParam(ParamCondition)
		for i := 0; ; i++ {
			if i >= maxIter {
				warning = fmt.Sprintf("loop reached max iterations (%d)", maxIter)
				e.logger.Warn("while loop hit iteration ceiling", "node", n.ID, "max_iterations", maxIter)
				break
			}
			if ctx.Err() != nil {
				return NodeResult{Success: false, Data: iterations, ErrorMessage: fmt.Sprintf("loop aborted: %v", ctx.Err())}
			}
			matched, err := evalCondition(cond, ec)
			if err != nil {
				return NodeResult{Success: false, Data: iterations, ErrorMessage: fmt.Sprintf("condition error: %v", err)}
			}
			if !matched {
				break
			}
			if ok := runIteration(i); !ok {
				success = false
				if !ec.ContinueOnError() {
					break
				}
			}
		}
	}

	res := NodeResult{Success: success, Data: iterations, Warning: warning}
	if !success {
		res.ErrorMessage = "loop body failed"
	}
	return res
}

// skipRemaining marks all non-terminal dag nodes Skipped, for chain-level
// aborts.
func (e *Executor) skipRemaining(d *dag, sink *resultSink, reason string) {
	for _, n := range d.all() {
		if n.Status.Terminal() {
			continue
		}
		n.setResult(NodeSkipped, NodeResult{Success: false, ErrorMessage: reason})
		sink.record(n)
		e.publish(events.TopicNode, events.NodeSkipped{ID: n.ID, Reason: reason, Timestamp: time.Now()})
	}
}

// skipNodes marks a slice of sequence nodes Skipped.
func (e *Executor) skipNodes(nodes []*CommandNode, sink *resultSink, reason string) {
	for _, n := range nodes {
		if n.Status.Terminal() {
			continue
		}
		n.setResult(NodeSkipped, NodeResult{Success: false, ErrorMessage: reason})
		sink.record(n)
		e.publish(events.TopicNode, events.NodeSkipped{ID: n.ID, Reason: reason, Timestamp: time.Now()})
	}
}

func (e *Executor) publish(topic string, ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(topic, ev)
	}
}

// resetNodes returns nodes to Pending for loop body re-execution.
func resetNodes(nodes []*CommandNode) {
	for _, n := range nodes {
		n.reset()
	}
}

// resultSink collects per-node outcomes across nested executions.
type resultSink struct {
	mu sync.Mutex
	m  map[string]NodeOutcome
}

func newResultSink() *resultSink {
	return &resultSink{m: make(map[string]NodeOutcome)}
}

func (s *resultSink) record(n *CommandNode) {
	if n.Result == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[n.ID] = NodeOutcome{
		Success:   n.Result.Success,
		Status:    n.Status,
		Data:      n.Result.Data,
		Error:     n.Result.ErrorMessage,
		Strategy:  n.Result.Strategy,
		Warning:   n.Result.Warning,
		Narrative: n.Result.Narrative,
	}
}

func (s *resultSink) snapshot() map[string]NodeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]NodeOutcome, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}
