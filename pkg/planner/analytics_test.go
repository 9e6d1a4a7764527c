package planner

import (
	"context"
	"testing"
	"time"

	"github.com/samfms/scf/internal/cache"
	"github.com/samfms/scf/pkg/trips"
)

func TestCompletionRateComputesFromTripHistoryOnly(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()

	// A completed trip and a cancelled trip for the same driver, both
	// moved into trip_history by the terminal-state transition; an
	// in-progress trip for the same driver that must NOT count.
	mk := func(status trips.TripStatus) trips.Trip {
		created, err := store.CreateTrip(ctx, trips.Trip{
			DriverID:       "D1",
			Status:         trips.StatusScheduled,
			ScheduledStart: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
			ScheduledEnd:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("CreateTrip: %v", err)
		}
		if status == trips.StatusScheduled {
			return created
		}
		if status == trips.StatusInProgress {
			updated, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusInProgress, time.Now())
			if err != nil {
				t.Fatalf("UpdateTripStatus(in_progress): %v", err)
			}
			return updated
		}
		if _, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusInProgress, time.Now()); err != nil {
			t.Fatalf("UpdateTripStatus(in_progress): %v", err)
		}
		final, err := store.UpdateTripStatus(ctx, created.ID, status, time.Now())
		if err != nil {
			t.Fatalf("UpdateTripStatus(%s): %v", status, err)
		}
		return final
	}

	mk(trips.StatusCompleted)
	mk(trips.StatusCancelled)
	mk(trips.StatusInProgress)

	analytics := NewTripHistoryDriverAnalytics(store, cache.NewMemory())

	rate, err := analytics.CompletionRate(ctx, "D1", 2024)
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if rate != 0.5 {
		t.Errorf("rate = %v, want 0.5 (1 completed / 2 resolved)", rate)
	}
}

func TestCompletionRateIsZeroForDriverWithNoHistory(t *testing.T) {
	store := trips.NewMemory()
	analytics := NewTripHistoryDriverAnalytics(store, cache.NewMemory())

	rate, err := analytics.CompletionRate(context.Background(), "ghost", 2024)
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if rate != 0 {
		t.Errorf("rate = %v, want 0", rate)
	}
}

func TestCompletionRateIsCachedAcrossCalls(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()

	created, err := store.CreateTrip(ctx, trips.Trip{
		DriverID:       "D2",
		Status:         trips.StatusScheduled,
		ScheduledStart: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	if _, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusInProgress, time.Now()); err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}
	if _, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusCompleted, time.Now()); err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}

	analytics := NewTripHistoryDriverAnalytics(store, cache.NewMemory())

	first, err := analytics.CompletionRate(ctx, "D2", 2024)
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if first != 1 {
		t.Fatalf("first rate = %v, want 1", first)
	}

	// A new completed trip for the same driver/year should not move the
	// cached rate within the TTL window.
	created2, err := store.CreateTrip(ctx, trips.Trip{
		DriverID:       "D2",
		Status:         trips.StatusScheduled,
		ScheduledStart: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		ScheduledEnd:   time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	if _, err := store.UpdateTripStatus(ctx, created2.ID, trips.StatusInProgress, time.Now()); err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}
	if _, err := store.UpdateTripStatus(ctx, created2.ID, trips.StatusCancelled, time.Now()); err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}

	second, err := analytics.CompletionRate(ctx, "D2", 2024)
	if err != nil {
		t.Fatalf("CompletionRate: %v", err)
	}
	if second != first {
		t.Errorf("second rate = %v, want cached %v", second, first)
	}
}
