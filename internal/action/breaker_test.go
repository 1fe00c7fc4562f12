package action

import (
	"context"
	"strings"
	"testing"
	"time"
)

func breakerUnderTest(inner Executor) *BreakerExecutor {
	return NewBreakerExecutor(inner, BreakerConfig{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	}, nil)
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := Func(func(_ context.Context, command string) (Result, error) {
		return Result{Success: true, Data: command}, nil
	})
	b := breakerUnderTest(inner)

	res, err := b.Execute(context.Background(), "click button")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Data != "click button" {
		t.Errorf("result = %+v", res)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := Func(func(_ context.Context, _ string) (Result, error) {
		return Result{Success: false, ErrorMessage: "element not found"}, nil
	})
	b := breakerUnderTest(inner)
	ctx := context.Background()

	// Failures below the threshold surface the inner error untouched.
	for i := 0; i < 2; i++ {
		res, err := b.Execute(ctx, "click button")
		if err != nil {
			t.Fatal(err)
		}
		if res.Success || res.ErrorMessage != "element not found" {
			t.Errorf("attempt %d = %+v", i, res)
		}
	}

	// The circuit is now open: the inner executor is no longer consulted.
	res, err := b.Execute(ctx, "click button")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.ErrorMessage, "circuit breaker open") {
		t.Errorf("error = %q", res.ErrorMessage)
	}
	if !strings.Contains(res.ErrorMessage, `"click"`) {
		t.Errorf("error does not name the verb: %q", res.ErrorMessage)
	}
}

// TestBreakerIsolatesVerbs: one misbehaving verb must not block others.
func TestBreakerIsolatesVerbs(t *testing.T) {
	inner := Func(func(_ context.Context, command string) (Result, error) {
		if strings.HasPrefix(command, "click") {
			return Result{Success: false, ErrorMessage: "boom"}, nil
		}
		return Result{Success: true, Data: "typed"}, nil
	})
	b := breakerUnderTest(inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, "click button")
	}

	res, err := b.Execute(ctx, "type hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("unrelated verb blocked: %+v", res)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	fail := true
	inner := Func(func(_ context.Context, _ string) (Result, error) {
		if fail {
			return Result{Success: false, ErrorMessage: "boom"}, nil
		}
		return Result{Success: true}, nil
	})
	b := breakerUnderTest(inner)
	ctx := context.Background()

	// One failure, one success, one failure: never two consecutive, the
	// circuit stays closed.
	b.Execute(ctx, "click a")
	fail = false
	b.Execute(ctx, "click a")
	fail = true
	res, err := b.Execute(ctx, "click a")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.ErrorMessage, "circuit breaker") {
		t.Errorf("circuit opened without consecutive failures: %q", res.ErrorMessage)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	inner := Func(func(ctx context.Context, _ string) (Result, error) {
		return Result{}, ctx.Err()
	})
	b := breakerUnderTest(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Repeated cancellations look like failures to the caller but must not
	// trip the circuit.
	for i := 0; i < 5; i++ {
		b.Execute(ctx, "click a")
	}

	res, _ := b.Execute(context.Background(), "click a")
	if strings.Contains(res.ErrorMessage, "circuit breaker") {
		t.Errorf("cancellations tripped the circuit: %q", res.ErrorMessage)
	}
}

// TestBreakerTripsOnTimeouts: a verb that keeps exceeding its deadline is a
// failing verb; only user cancellation is exempt.
func TestBreakerTripsOnTimeouts(t *testing.T) {
	inner := Func(func(_ context.Context, _ string) (Result, error) {
		return Result{}, context.DeadlineExceeded
	})
	b := breakerUnderTest(inner)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b.Execute(ctx, "click a")
	}

	res, err := b.Execute(ctx, "click a")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.ErrorMessage, "circuit breaker open") {
		t.Errorf("timeouts did not trip the circuit: %+v", res)
	}
}
