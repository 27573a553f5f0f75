package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func retryableOn(target error) ErrorClassifier {
	return func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, target), RecordFailure: true}
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastRetry(3)})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, retryableOn(errTemp))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteReturnsLastErrorWhenAttemptsExhausted(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastRetry(2)})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTemp
	}, retryableOn(errTemp))
	if !errors.Is(err, errTemp) || attempts != 2 {
		t.Fatalf("expected temporary error after 2 attempts, got err=%v attempts=%d", err, attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastRetry(3)})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		Retry: fastRetry(1),
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      50 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		},
	})

	var transitions []gobreaker.State
	exec.SetStateObserver(func(operation string, state gobreaker.State) {
		if operation == "ollama.classify" {
			transitions = append(transitions, state)
		}
	})

	errTemp := errors.New("temporary")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "ollama.classify", func(context.Context) error {
			return errTemp
		}, nil)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("expected one transition to open, got %v", transitions)
	}

	err := exec.Execute(context.Background(), "ollama.classify", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	if err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("breakers must be per operation, got %v", err)
	}
}

func TestUnrecordedFailuresKeepCircuitClosed(t *testing.T) {
	exec := NewExecutor(Config{
		Retry:   fastRetry(1),
		Breaker: BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1},
	})
	ignored := func(error) ErrorClassification { return ErrorClassification{} }

	for i := 0; i < 5; i++ {
		_ = exec.Execute(context.Background(), "op", func(context.Context) error {
			return context.Canceled
		}, ignored)
	}
	called := false
	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		called = true
		return nil
	}, ignored)
	if !called {
		t.Fatalf("expected circuit to stay closed")
	}
}

func TestRunWithoutExecutorCallsDirectly(t *testing.T) {
	calls := 0
	errBoom := errors.New("boom")
	err := Run(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return errBoom
	}, nil)
	if !errors.Is(err, errBoom) || calls != 1 {
		t.Fatalf("expected single direct call, got err=%v calls=%d", err, calls)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	exec := NewExecutor(Config{Retry: RetryPolicy{MaxAttempts: 3}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Run(ctx, exec, "op", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled without call, got err=%v called=%v", err, called)
	}
}

func TestRetryDelayIsCappedExponential(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2,
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %s, want %s", i+1, got, w)
		}
	}

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		got := p.delay(1)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %s outside [50ms,150ms]", got)
		}
	}
}

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{Retry: RetryPolicy{InitialBackoff: time.Second, MaxBackoff: time.Millisecond, Jitter: 3}}.normalize()
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.MaxBackoff != time.Second || cfg.Retry.Jitter != 0 {
		t.Fatalf("unexpected retry policy: %+v", cfg.Retry)
	}
	if cfg.Breaker.Enabled || cfg.Breaker.MinRequests != 10 || cfg.Breaker.OpenTimeout != 30*time.Second {
		t.Fatalf("unexpected breaker policy: %+v", cfg.Breaker)
	}
}
