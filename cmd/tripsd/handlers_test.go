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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/pinger"
	"github.com/samfms/scf/pkg/trips"
)

type fixedSpeedLimitProvider struct{ kmh float64 }

func (f fixedSpeedLimitProvider) SpeedLimitKMH(ctx context.Context, at geo.Point) (float64, error) {
	return f.kmh, nil
}

func newTestHandlers(t *testing.T, store trips.Store) *handlers {
	t.Helper()
	fanout := notify.New(store, &staticRoleDirectory{}, nil)
	t.Cleanup(fanout.Stop)
	monitor := pinger.New(store, fixedSpeedLimitProvider{kmh: 100}, fanout, nil)
	return &handlers{store: store, pinger: monitor}
}

func seedTrip(t *testing.T, store trips.Store, status trips.TripStatus) trips.Trip {
	t.Helper()
	now := time.Now().UTC()
	trip, err := store.CreateTrip(context.Background(), trips.Trip{
		ID:             "t-1",
		Name:           "test trip",
		Status:         status,
		ScheduledStart: now,
		ScheduledEnd:   now.Add(time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateTrip() error = %v", err)
	}
	return trip
}

func TestUpdateTripStatusOpensPingSessionOnTransitionIntoInProgress(t *testing.T) {
	store := trips.NewMemory()
	seedTrip(t, store, trips.StatusScheduled)
	h := newTestHandlers(t, store)

	if _, err := h.updateTripStatus(context.Background(), "t-1", trips.StatusInProgress); err != nil {
		t.Fatalf("updateTripStatus() error = %v", err)
	}

	session, ok, err := store.GetActivePingSession(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetActivePingSession() error = %v", err)
	}
	if !ok || !session.IsActive {
		t.Fatalf("expected an active ping session after transitioning into in_progress")
	}
}

func TestUpdateTripStatusClosesPingSessionOnTransitionOutOfInProgress(t *testing.T) {
	store := trips.NewMemory()
	seedTrip(t, store, trips.StatusScheduled)
	h := newTestHandlers(t, store)
	ctx := context.Background()

	if _, err := h.updateTripStatus(ctx, "t-1", trips.StatusInProgress); err != nil {
		t.Fatalf("updateTripStatus(in_progress) error = %v", err)
	}
	if _, err := h.updateTripStatus(ctx, "t-1", trips.StatusCompleted); err != nil {
		t.Fatalf("updateTripStatus(completed) error = %v", err)
	}

	if _, ok, err := store.GetActivePingSession(ctx, "t-1"); err != nil {
		t.Fatalf("GetActivePingSession() error = %v", err)
	} else if ok {
		t.Fatalf("expected no active ping session after the trip completed")
	}
}

func TestUpdateTripStatusLeavesPingSessionAloneBetweenNonInProgressStates(t *testing.T) {
	store := trips.NewMemory()
	seedTrip(t, store, trips.StatusScheduled)
	h := newTestHandlers(t, store)

	updated, err := h.updateTripStatus(context.Background(), "t-1", trips.StatusCancelled)
	if err != nil {
		t.Fatalf("updateTripStatus() error = %v", err)
	}
	if updated.Status != trips.StatusCancelled {
		t.Fatalf("Status = %q, want cancelled", updated.Status)
	}
	if _, ok, err := store.GetActivePingSession(context.Background(), "t-1"); err != nil {
		t.Fatalf("GetActivePingSession() error = %v", err)
	} else if ok {
		t.Fatalf("expected no ping session for a trip that never entered in_progress")
	}
}
