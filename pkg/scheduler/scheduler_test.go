package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesTaskRepeatedly(t *testing.T) {
	s := New(nil, nil)
	var calls atomic.Int32
	s.Register(Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if calls.Load() < 2 {
		t.Errorf("task ran %d times, want at least 2", calls.Load())
	}
}

func TestRunIsolatesTaskErrorsFromSiblings(t *testing.T) {
	s := New(nil, nil)
	var healthyCalls atomic.Int32

	s.Register(Task{
		Name:     "failing",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})
	s.Register(Task{
		Name:     "healthy",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			healthyCalls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if healthyCalls.Load() < 2 {
		t.Errorf("healthy task ran %d times despite sibling failures, want at least 2", healthyCalls.Load())
	}
}

func TestRunIsolatesTaskPanicsFromSiblings(t *testing.T) {
	s := New(nil, nil)
	var healthyCalls atomic.Int32

	s.Register(Task{
		Name:     "panicking",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			panic("boom")
		},
	})
	s.Register(Task{
		Name:     "healthy",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			healthyCalls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if healthyCalls.Load() < 2 {
		t.Errorf("healthy task ran %d times despite a panicking sibling, want at least 2", healthyCalls.Load())
	}
}

func TestStopCancelsRunningTasks(t *testing.T) {
	s := New(nil, nil)
	var calls atomic.Int32
	s.Register(Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}
