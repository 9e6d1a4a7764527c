package trips

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
)

func TestCreateTripAssignsIDAndTimestamps(t *testing.T) {
	m := NewMemory()
	trip, err := m.CreateTrip(context.Background(), Trip{Name: "Depot run", Status: StatusScheduled, Priority: PriorityNormal})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	if trip.ID == "" {
		t.Error("expected a generated trip id")
	}
	if trip.CreatedAt.IsZero() || trip.UpdatedAt.IsZero() {
		t.Error("expected CreatedAt/UpdatedAt to be set")
	}
}

func TestUpdateTripStatusMovesTerminalTripToHistory(t *testing.T) {
	m := NewMemory()
	trip, _ := m.CreateTrip(context.Background(), Trip{Name: "X", Status: StatusScheduled})

	if _, err := m.UpdateTripStatus(context.Background(), trip.ID, StatusInProgress, time.Now()); err != nil {
		t.Fatalf("transition to in_progress: %v", err)
	}
	if _, err := m.GetTrip(context.Background(), trip.ID); err != nil {
		t.Fatalf("expected trip still visible in trips while in_progress: %v", err)
	}

	if _, err := m.UpdateTripStatus(context.Background(), trip.ID, StatusCompleted, time.Now()); err != nil {
		t.Fatalf("transition to completed: %v", err)
	}

	if _, err := m.GetTrip(context.Background(), trip.ID); err == nil {
		t.Error("expected completed trip to be removed from trips")
	}
	if _, err := m.GetTripHistory(context.Background(), trip.ID); err != nil {
		t.Errorf("expected completed trip to be archived in trip_history: %v", err)
	}
}

func TestUpdateTripStatusRejectsInvalidTransition(t *testing.T) {
	m := NewMemory()
	trip, _ := m.CreateTrip(context.Background(), Trip{Name: "X", Status: StatusScheduled})

	_, err := m.UpdateTripStatus(context.Background(), trip.ID, StatusCompleted, time.Now())
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Type != apperrors.TypeBusinessRule {
		t.Fatalf("expected a BusinessRule error for scheduled->completed, got %v", err)
	}
}

func TestCreateAssignmentRejectsSecondActiveAssignmentForSameVehicle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t1", VehicleID: "v1", DriverID: "d1", Start: time.Now()}); err != nil {
		t.Fatalf("first assignment: %v", err)
	}

	_, err := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t2", VehicleID: "v1", DriverID: "d2", Start: time.Now()})
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Type != apperrors.TypeConflict {
		t.Fatalf("expected a Conflict error for a second active assignment on the same vehicle, got %v", err)
	}
}

func TestCreateAssignmentRejectsSecondActiveAssignmentForSameDriver(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t1", VehicleID: "v1", DriverID: "d1", Start: time.Now()}); err != nil {
		t.Fatalf("first assignment: %v", err)
	}

	_, err := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t2", VehicleID: "v2", DriverID: "d1", Start: time.Now()})
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Type != apperrors.TypeConflict {
		t.Fatalf("expected a Conflict error for a second active assignment on the same driver, got %v", err)
	}
}

func TestEndAssignmentAllowsNewActiveAssignment(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t1", VehicleID: "v1", DriverID: "d1", Start: time.Now()})
	if err := m.EndAssignment(ctx, a.ID, time.Now()); err != nil {
		t.Fatalf("EndAssignment: %v", err)
	}

	if _, err := m.CreateAssignment(ctx, VehicleAssignment{TripID: "t2", VehicleID: "v1", DriverID: "d2", Start: time.Now()}); err != nil {
		t.Fatalf("expected a new assignment to succeed after the prior one ended: %v", err)
	}
}

func TestOpenPingSessionRejectsSecondActiveSessionForSameTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if _, err := m.OpenPingSession(ctx, PingSession{TripID: "t1", StartedAt: now, LastPingAt: now, NextPingExpectedAt: now.Add(30 * time.Second)}); err != nil {
		t.Fatalf("first ping session: %v", err)
	}
	_, err := m.OpenPingSession(ctx, PingSession{TripID: "t1", StartedAt: now, LastPingAt: now, NextPingExpectedAt: now.Add(30 * time.Second)})
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Type != apperrors.TypeConflict {
		t.Fatalf("expected a Conflict error for a second active ping session, got %v", err)
	}
}

func TestCloseActivePingSessionAllowsReopen(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	m.OpenPingSession(ctx, PingSession{TripID: "t1", StartedAt: now, LastPingAt: now, NextPingExpectedAt: now.Add(30 * time.Second)})
	if err := m.CloseActivePingSession(ctx, "t1"); err != nil {
		t.Fatalf("CloseActivePingSession: %v", err)
	}
	if _, err := m.OpenPingSession(ctx, PingSession{TripID: "t1", StartedAt: now, LastPingAt: now, NextPingExpectedAt: now.Add(30 * time.Second)}); err != nil {
		t.Fatalf("expected reopening a ping session after close to succeed: %v", err)
	}
}

func TestListUnreadNotificationsExcludesRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n1, _ := m.CreateNotification(ctx, Notification{RecipientUserID: "u1", Title: "a"})
	m.CreateNotification(ctx, Notification{RecipientUserID: "u1", Title: "b"})
	m.MarkNotificationRead(ctx, n1.ID, time.Now())

	unread, err := m.ListUnreadNotifications(ctx, "u1")
	if err != nil {
		t.Fatalf("ListUnreadNotifications: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("expected 1 unread notification, got %d", len(unread))
	}
	if unread[0].Title != "b" {
		t.Errorf("unexpected unread notification: %+v", unread[0])
	}
}

func TestPurgeLocationHistoryBeforeRemovesOnlyOlderSamples(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	cutoff := time.Now()

	m.AppendLocationHistory(ctx, LocationHistory{VehicleID: "v1", Timestamp: cutoff.Add(-time.Hour)})
	m.AppendLocationHistory(ctx, LocationHistory{VehicleID: "v1", Timestamp: cutoff.Add(time.Hour)})

	purged, err := m.PurgeLocationHistoryBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("PurgeLocationHistoryBefore: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged sample, got %d", purged)
	}
	if len(m.locationHistory) != 1 {
		t.Fatalf("expected 1 remaining sample, got %d", len(m.locationHistory))
	}
}
