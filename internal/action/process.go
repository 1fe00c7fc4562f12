package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// ProcessExecutor runs commands through a shell subprocess. It is the
// reference Executor implementation; the surrounding automation layer is
// expected to supply its own for real mouse/keyboard work.
type ProcessExecutor struct {
	shell  string
	args   []string
	pm     *ProcessManager
	logger *slog.Logger
}

// NewProcessExecutor creates a ProcessExecutor that runs each command as
// `shell args... command`. An empty shell defaults to "/bin/sh" with "-c".
func NewProcessExecutor(shell string, args []string, pm *ProcessManager, logger *slog.Logger) *ProcessExecutor {
	if shell == "" {
		shell = "/bin/sh"
		args = []string{"-c"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessExecutor{shell: shell, args: args, pm: pm, logger: logger}
}

// Execute runs the command in a subprocess and captures its output.
// A non-zero exit is a command failure, not an executor error.
func (p *ProcessExecutor) Execute(ctx context.Context, command string) (Result, error) {
	cmd := newCommand(ctx, p.shell, append(append([]string(nil), p.args...), command)...)

	stdout, stderr, err := runCommand(ctx, cmd, p.pm)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Success: false, ErrorMessage: fmt.Sprintf("command timed out: %v", ctx.Err())}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(string(stderr))
			if msg == "" {
				msg = err.Error()
			}
			p.logger.Debug("command exited non-zero", "command", command, "error", msg)
			return Result{Success: false, Data: string(stdout), ErrorMessage: msg}, nil
		}
		return Result{}, err
	}

	return Result{Success: true, Data: strings.TrimSpace(string(stdout))}, nil
}

// Close terminates any subprocesses still tracked by the process manager.
func (p *ProcessExecutor) Close() error {
	if p.pm != nil {
		return p.pm.KillAll()
	}
	return nil
}

// newCommand creates an exec.Cmd in its own process group so the whole
// subprocess tree can be terminated together.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// runCommand starts the command and drains stdout/stderr concurrently before
// calling Wait. Draining first prevents a deadlock when output exceeds the
// pipe buffer capacity.
func runCommand(ctx context.Context, cmd *exec.Cmd, pm *ProcessManager) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting command: %w", err)
	}
	if pm != nil {
		pm.track(cmd)
		defer pm.untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), waitErr
}

// killProcessGroup kills the entire process group of a started command,
// including any children it spawned.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running subprocesses so they can all be terminated
// on shutdown. Typically wired to a signal-aware context in main.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*exec.Cmd)}
}

// track registers a started command. The pid is only valid after Start.
func (pm *ProcessManager) track(cmd *exec.Cmd) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if cmd.Process != nil {
		pm.procs[cmd.Process.Pid] = cmd
	}
}

func (pm *ProcessManager) untrack(cmd *exec.Cmd) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if cmd.Process != nil {
		delete(pm.procs, cmd.Process.Pid)
	}
}

// KillAll terminates every tracked subprocess group. Safe to call multiple
// times and from a shutdown goroutine.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	procs := make(map[int]*exec.Cmd, len(pm.procs))
	for pid, cmd := range pm.procs {
		procs[pid] = cmd
	}
	pm.procs = make(map[int]*exec.Cmd)
	pm.mu.Unlock()

	var errs []error
	for pid, cmd := range procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors killing processes: %v", errs)
	}
	return nil
}
