package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	base := 2 * time.Second
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(base, c.retryCount); got != c.want {
			t.Errorf("backoffDelay(%v, %d) = %v, want %v", base, c.retryCount, got, c.want)
		}
	}
}

func TestRetryCountOfDefaultsToZero(t *testing.T) {
	if got := retryCountOf(nil); got != 0 {
		t.Errorf("retryCountOf(nil) = %d, want 0", got)
	}
}

func TestSubscriberMatchHandlerPicksBoundPattern(t *testing.T) {
	var called string
	s := NewSubscriber("test", "test_queue", DefaultQueueOptions(), nil)
	s.Bind("vehicle_events", "vehicle.*", func(ctx context.Context, evt Event) error {
		called = "vehicle"
		return nil
	})
	s.Bind("security_events", "auth.*", func(ctx context.Context, evt Event) error {
		called = "security"
		return nil
	})

	h := s.matchHandler("vehicle.created")
	if h == nil {
		t.Fatal("expected a matching handler for vehicle.created")
	}
	if err := h(context.Background(), Event{}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if called != "vehicle" {
		t.Errorf("called = %q, want %q", called, "vehicle")
	}

	if s.matchHandler("billing.created") != nil {
		t.Error("expected no match for an unbound routing key")
	}
}

func TestDefaultQueueOptionsMatchSpecDefaults(t *testing.T) {
	opts := DefaultQueueOptions()
	if opts.MessageTTL != 5*time.Minute {
		t.Errorf("MessageTTL = %v, want 5m", opts.MessageTTL)
	}
	if opts.MaxRetryAttempts != 3 {
		t.Errorf("MaxRetryAttempts = %d, want 3", opts.MaxRetryAttempts)
	}
}
