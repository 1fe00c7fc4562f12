package action

import "context"

// Result is the outcome of executing a single raw command.
type Result struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	ErrorMessage string `json:"error,omitempty"`
}

// Executor performs the actual system/UI side effect for a raw command.
// The command string is opaque to the chain engine; it is interpreted only
// by the implementation. Deadlines are supplied through the context and
// exceeding one is reported like any other failure.
type Executor interface {
	// Execute runs the command and returns its outcome. A non-nil error
	// indicates the executor itself broke (transport, subprocess spawn);
	// command-level failures are reported via Result.Success.
	Execute(ctx context.Context, command string) (Result, error)

	// Close releases any resources held by the executor.
	Close() error
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, command string) (Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, command string) (Result, error) {
	return f(ctx, command)
}

// Close is a no-op.
func (f Func) Close() error { return nil }
