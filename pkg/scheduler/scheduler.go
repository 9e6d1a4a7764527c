/*
Copyright 2026 The SAMFMS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler implements C8: a single per-process scheduler
// running named periodic tasks with optional jitter, cooperative
// cancellation on shutdown, and per-task isolation so one task's
// handler panicking or erroring never affects its siblings, with each
// task's duration and outcome recorded through
// prometheus/client_golang the way this module's other background
// loops are instrumented.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
)

// shutdownGrace is how long a task's handler has to observe cancellation
// and return, per spec §4.8.
const shutdownGrace = 5 * time.Second

// TaskFunc is one scheduled unit of work. It should return promptly
// once ctx is cancelled.
type TaskFunc func(ctx context.Context) error

// Task is one named periodic registration.
type Task struct {
	Name     string
	Interval time.Duration
	Jitter   time.Duration // up to this much random delay added to each tick
	Handler  TaskFunc
}

// Scheduler runs a fixed set of named tasks concurrently, each on its
// own ticker, until Stop is called.
type Scheduler struct {
	logger *zap.Logger
	tasks  []Task

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool

	duration *prometheus.HistogramVec
}

// New constructs an empty Scheduler. Register tasks with Register before
// calling Run.
func New(logger *zap.Logger, registerer prometheus.Registerer) *Scheduler {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scf",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Duration of each scheduler task run, labeled by task name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task", "outcome"})

	if registerer != nil {
		registerer.MustRegister(duration)
	}

	return &Scheduler{
		logger:   logging.NopIfNil(logger),
		duration: duration,
	}
}

// Register adds t to the set of tasks Run will start. Registering after
// Run has been called has no effect on the current run.
func (s *Scheduler) Register(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run starts every registered task and blocks until ctx is cancelled or
// Stop is called, then waits up to shutdownGrace for every task to
// return.
func (s *Scheduler) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.runTask(runCtx, t)
	}

	<-runCtx.Done()
	s.waitWithGrace()
}

// Stop cancels every running task and returns without waiting; Run is
// what waits up to shutdownGrace for the tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Scheduler) waitWithGrace() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.logger.Warn("scheduler: one or more tasks did not return within the shutdown grace period")
	}
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.waitJitter(ctx, t.Jitter)
			if ctx.Err() != nil {
				return
			}
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) waitJitter(ctx context.Context, jitter time.Duration) {
	if jitter <= 0 {
		return
	}
	delay := time.Duration(rand.Int63n(int64(jitter)))
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// runOnce executes t.Handler once, isolating a panic or error so it
// never propagates to the scheduler or sibling tasks (spec §4.8:
// "per-task exceptions are logged and do not affect sibling tasks").
func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	outcome := "success"

	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			s.logger.Error("scheduler: task panicked", zap.String("task", t.Name), zap.Any("panic", r))
		}
		s.duration.WithLabelValues(t.Name, outcome).Observe(time.Since(start).Seconds())
	}()

	if err := t.Handler(ctx); err != nil {
		outcome = "error"
		s.logger.Error("scheduler: task failed", zap.String("task", t.Name), zap.Error(err))
	}
}
