package pinger

import (
	"context"
	"testing"
	"time"

	"github.com/samfms/scf/internal/geo"
	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/trips"
)

func mustCreateInProgressTrip(t *testing.T, store trips.Store, vehicleID string) trips.Trip {
	t.Helper()
	ctx := context.Background()
	created, err := store.CreateTrip(ctx, trips.Trip{
		VehicleID:      vehicleID,
		Status:         trips.StatusScheduled,
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	updated, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusInProgress, time.Now())
	if err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}
	return updated
}

func TestPingRejectsTripNotInProgress(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	created, err := store.CreateTrip(ctx, trips.Trip{
		Status:         trips.StatusScheduled,
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	m := New(store, &providers.StubSpeedLimit{}, nil, nil)
	_, err = m.Ping(ctx, created.ID, geo.Point{}, time.Now(), -1)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Type != apperrors.TypeBusinessRule {
		t.Fatalf("expected a BusinessRule error for a non-in_progress trip, got %v", err)
	}
}

func TestPingRecordsSpeedingViolationWhenOverLimit(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	trip := mustCreateInProgressTrip(t, store, "V1")

	m := New(store, &providers.StubSpeedLimit{LimitKMH: 50}, nil, nil)
	if _, err := m.OpenSession(ctx, trip.ID, time.Now()); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	result, err := m.Ping(ctx, trip.ID, geo.Point{Lat: 1, Lng: 1}, time.Now(), 80)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !result.IsSpeeding {
		t.Error("expected IsSpeeding = true for 80 km/h against a 50 km/h limit")
	}
	if result.SpeedOverLimitKMH != 30 {
		t.Errorf("SpeedOverLimitKMH = %v, want 30", result.SpeedOverLimitKMH)
	}
	if result.ViolationsCount != 1 {
		t.Errorf("ViolationsCount = %v, want 1", result.ViolationsCount)
	}
}

func TestPingDoesNotFlagWithinLimit(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	trip := mustCreateInProgressTrip(t, store, "V1")

	m := New(store, &providers.StubSpeedLimit{LimitKMH: 50}, nil, nil)
	if _, err := m.OpenSession(ctx, trip.ID, time.Now()); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	result, err := m.Ping(ctx, trip.ID, geo.Point{Lat: 1, Lng: 1}, time.Now(), 40)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if result.IsSpeeding {
		t.Error("expected IsSpeeding = false for 40 km/h against a 50 km/h limit")
	}
	if result.ViolationsCount != 0 {
		t.Errorf("ViolationsCount = %v, want 0", result.ViolationsCount)
	}
}

func TestWatchdogTickAppendsMissedPingPastGrace(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	trip := mustCreateInProgressTrip(t, store, "V1")

	fanout := notify.New(store, nil, nil)
	defer fanout.Stop()

	m := New(store, &providers.StubSpeedLimit{}, fanout, nil, WithInterval(time.Second), WithGrace(time.Second))
	past := time.Now().Add(-10 * time.Second)
	if _, err := store.OpenPingSession(ctx, trips.PingSession{
		TripID:             trip.ID,
		StartedAt:          past,
		LastPingAt:         past,
		NextPingExpectedAt: past.Add(time.Second),
	}); err != nil {
		t.Fatalf("OpenPingSession: %v", err)
	}

	if err := m.WatchdogTick(ctx); err != nil {
		t.Fatalf("WatchdogTick: %v", err)
	}

	session, ok, err := store.GetActivePingSession(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetActivePingSession: %v", err)
	}
	if !ok {
		t.Fatal("expected the session to still be active")
	}
	if session.ViolationsCount != 1 {
		t.Errorf("ViolationsCount = %v, want 1", session.ViolationsCount)
	}
}

func TestWatchdogTickSkipsSessionsWithinGrace(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	trip := mustCreateInProgressTrip(t, store, "V1")

	m := New(store, &providers.StubSpeedLimit{}, nil, nil, WithInterval(30*time.Second), WithGrace(30*time.Second))
	if _, err := m.OpenSession(ctx, trip.ID, time.Now()); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if err := m.WatchdogTick(ctx); err != nil {
		t.Fatalf("WatchdogTick: %v", err)
	}

	session, ok, err := store.GetActivePingSession(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetActivePingSession: %v", err)
	}
	if !ok {
		t.Fatal("expected the session to still be active")
	}
	if session.ViolationsCount != 0 {
		t.Errorf("ViolationsCount = %v, want 0 (still within grace)", session.ViolationsCount)
	}
}
