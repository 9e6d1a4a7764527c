package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New(DefaultConfig("test"))
	if b.State() != StateClosed {
		t.Fatalf("State() = %v, want %v", b.State(), StateClosed)
	}
}

func TestBreakerOpensAfterThresholdConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Threshold = 5
	cfg.RecoveryTimeout = time.Hour
	b := New(cfg)

	ctx := context.Background()
	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 5; i++ {
		_ = b.Call(ctx, failing)
	}

	if b.State() != StateOpen {
		t.Fatalf("State() after 5 consecutive failures = %v, want %v", b.State(), StateOpen)
	}
}

func TestBreakerFailsFastWithoutInvokingFnWhenOpen(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Threshold = 2
	cfg.RecoveryTimeout = time.Hour
	b := New(cfg)

	ctx := context.Background()
	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 2; i++ {
		_ = b.Call(ctx, failing)
	}

	called := false
	err := b.Call(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	if called {
		t.Error("guarded function was invoked while breaker is OPEN")
	}
	if err == nil {
		t.Fatal("expected ServiceUnavailable error while OPEN")
	}
}

func TestBreakerHalfOpenThenClosesOnSuccess(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Threshold = 2
	cfg.RecoveryTimeout = 10 * time.Millisecond
	b := New(cfg)

	ctx := context.Background()
	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 2; i++ {
		_ = b.Call(ctx, failing)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Call(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("expected HALF_OPEN probe to succeed, got %v", err)
	}

	if b.State() != StateClosed {
		t.Fatalf("State() after successful half-open probe = %v, want %v", b.State(), StateClosed)
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Threshold = 2
	cfg.RecoveryTimeout = 10 * time.Millisecond
	b := New(cfg)

	ctx := context.Background()
	failing := func(ctx context.Context) error { return errors.New("boom") }
	for i := 0; i < 2; i++ {
		_ = b.Call(ctx, failing)
	}

	time.Sleep(20 * time.Millisecond)
	_ = b.Call(ctx, failing)

	if b.State() != StateOpen {
		t.Fatalf("State() after failed half-open probe = %v, want %v", b.State(), StateOpen)
	}
}

func TestCallValuePassesThroughResult(t *testing.T) {
	b := New(DefaultConfig("test"))
	ctx := context.Background()

	got, err := CallValue(ctx, b, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("CallValue() error = %v", err)
	}
	if got != 42 {
		t.Errorf("CallValue() = %d, want 42", got)
	}
}
