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

// Package breaker implements C4: a CLOSED/OPEN/HALF_OPEN circuit breaker
// guarding calls to external collaborators (the security service, routing
// and traffic providers). It wraps github.com/sony/gobreaker, configured
// so its vocabulary and half-open call budget match spec §4.4 exactly
// rather than gobreaker's own failure-ratio defaults.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/samfms/scf/internal/errors"
)

// State mirrors the spec's three-state vocabulary. gobreaker's own State
// type already uses these names via String(), but we re-export our own
// enum so callers outside this package never need to import gobreaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the spec §4.4 defaults and their overrides.
type Config struct {
	Name             string
	Threshold        uint32        // consecutive failures within Window before tripping to OPEN
	Window           time.Duration // the Interval over which Threshold is evaluated while CLOSED
	RecoveryTimeout  time.Duration // time spent OPEN before trying HALF_OPEN
	HalfOpenMaxCalls uint32        // calls allowed through while HALF_OPEN
	OnStateChange    func(name string, from, to State)
}

// DefaultConfig returns spec §4.4's defaults: threshold 5, recovery 60s,
// half_open_max_calls 3.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		Threshold:        5,
		Window:           0, // 0 means gobreaker never clears counts while closed except on success
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker is the CLOSED/OPEN/HALF_OPEN latch around a single external
// collaborator.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	mu          sync.Mutex
	lastState   gobreaker.State
	stateChange func(name string, from, to State)
}

// New constructs a Breaker from Config.
func New(cfg Config) *Breaker {
	b := &Breaker{name: cfg.Name, stateChange: cfg.OnStateChange}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    cfg.Window,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.stateChange != nil {
				b.stateChange(name, toState(from), toState(to))
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	b.lastState = gobreaker.StateClosed
	return b
}

func toState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Name returns the breaker's identifier, usually the guarded collaborator's
// name ("security-service", "routing-provider", ...).
func (b *Breaker) Name() string { return b.name }

// State reports the breaker's current state.
func (b *Breaker) State() State {
	return toState(b.cb.State())
}

// Call executes fn under the breaker. While OPEN, or when the HALF_OPEN
// call budget is exhausted, fn is never invoked and ServiceUnavailable is
// returned immediately (spec §4.4's "excess calls fail fast").
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.New(errors.TypeServiceUnavailable, b.name+" circuit breaker is open").
			WithDetails(err.Error())
	}
	return err
}

// CallValue is Call for collaborators that return a value alongside the
// error, e.g. a routing provider's route response.
func CallValue[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return zero, errors.New(errors.TypeServiceUnavailable, b.name+" circuit breaker is open").
			WithDetails(err.Error())
	}
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}
