package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   1 * time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRun_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Run(context.Background(), DefaultPolicy(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRun_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Run(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRun_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Run(context.Background(), fastPolicy(5), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 5 {
		t.Errorf("expected 5 calls, got %d", calls)
	}
}

func TestRun_NonRetryable(t *testing.T) {
	var calls int
	err := Run(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return errors.New("permanent error: bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-transient), got %d", calls)
	}
}

func TestRun_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	p := Policy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond}

	err := Run(ctx, p, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls after cancel, got %d", calls)
	}
}

func TestRun_CustomRetryable(t *testing.T) {
	var calls int
	p := fastPolicy(3).WithRetryable(func(err error) bool {
		return err.Error() == "retry me"
	})

	err := Run(context.Background(), p, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRun_OnRetryCallback(t *testing.T) {
	var attempts []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = Run(context.Background(), p, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"), 500)
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1 2], got %v", attempts)
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	var calls int
	val, err := Do(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("fail"), 500)
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Errorf("expected %q, got %q", "hello", val)
	}
}

func TestDo_ZeroValueOnFailure(t *testing.T) {
	val, err := Do(context.Background(), fastPolicy(2), func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestRun_ZeroPolicyUsesDefaults(t *testing.T) {
	var calls atomic.Int32
	err := Run(context.Background(), Policy{}, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	p := applyDefaults(Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2.0})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, w := range want {
		if got := backoff(i, p); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestBackoff_CapsAtMax(t *testing.T) {
	p := applyDefaults(Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10.0})
	if d := backoff(5, p); d > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", d)
	}
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	p := applyDefaults(Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: 0.5})
	for i := 0; i < 100; i++ {
		d := backoff(0, p)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v outside [500ms, 1500ms]", d)
		}
	}
}

func TestPersistPolicy_FiveAttempts(t *testing.T) {
	if PersistPolicy().MaxAttempts != 5 {
		t.Errorf("expected 5 persist attempts, got %d", PersistPolicy().MaxAttempts)
	}
}
