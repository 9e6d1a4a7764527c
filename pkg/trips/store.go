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

package trips

import (
	"context"
	"time"
)

// TripFilter narrows ListTrips/ListActiveTrips queries. Zero-value fields
// are unconstrained.
type TripFilter struct {
	VehicleID string
	DriverID  string
	Status    TripStatus
}

// Store is the persistence boundary for every C9 collection. Both the
// in-memory and PostgreSQL implementations satisfy it, so planner,
// pinger, traffic, and notify components depend on this interface rather
// than a concrete backend.
type Store interface {
	// Trips / trip_history (spec §4.9's atomic move on terminal state).
	CreateTrip(ctx context.Context, t Trip) (Trip, error)
	GetTrip(ctx context.Context, id string) (Trip, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]Trip, error)
	// UpdateTripStatus performs the status transition under the
	// per-trip-id exclusive lock spec §5 requires, moving the record to
	// trip_history atomically once the new status is terminal.
	UpdateTripStatus(ctx context.Context, id string, newStatus TripStatus, now time.Time) (Trip, error)
	UpdateTripRoute(ctx context.Context, id string, route RouteInfo) (Trip, error)
	GetTripHistory(ctx context.Context, id string) (Trip, error)
	ListTripHistory(ctx context.Context, filter TripFilter) ([]Trip, error)

	// Scheduled trips.
	CreateScheduledTrip(ctx context.Context, st ScheduledTrip) (ScheduledTrip, error)
	GetScheduledTrip(ctx context.Context, id string) (ScheduledTrip, error)
	DeleteScheduledTrip(ctx context.Context, id string) error

	// Smart trips (consumed on activation).
	PutSmartTrip(ctx context.Context, st SmartTrip) (SmartTrip, error)
	GetSmartTripByScheduledTrip(ctx context.Context, scheduledTripID string) (SmartTrip, error)
	DeleteSmartTrip(ctx context.Context, id string) error

	// Vehicle assignments (spec §5's per-vehicle-id uniqueness rule).
	CreateAssignment(ctx context.Context, a VehicleAssignment) (VehicleAssignment, error)
	EndAssignment(ctx context.Context, id string, end time.Time) error
	ActiveAssignmentForVehicle(ctx context.Context, vehicleID string) (VehicleAssignment, bool, error)

	// Vehicle location tracking.
	UpsertVehicleLocation(ctx context.Context, loc VehicleLocation) error
	GetVehicleLocation(ctx context.Context, vehicleID string) (VehicleLocation, bool, error)
	AppendLocationHistory(ctx context.Context, h LocationHistory) error
	PurgeLocationHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Ping sessions / violations (C11).
	OpenPingSession(ctx context.Context, s PingSession) (PingSession, error)
	GetActivePingSession(ctx context.Context, tripID string) (PingSession, bool, error)
	UpdatePingSession(ctx context.Context, s PingSession) error
	CloseActivePingSession(ctx context.Context, tripID string) error
	ListActivePingSessions(ctx context.Context) ([]PingSession, error)
	RecordViolation(ctx context.Context, v Violation) (Violation, error)

	// Route recommendations (C12).
	PutRouteRecommendation(ctx context.Context, r RouteRecommendation) (RouteRecommendation, error)
	GetRouteRecommendation(ctx context.Context, id string) (RouteRecommendation, error)
	DeleteRouteRecommendation(ctx context.Context, id string) error

	// Notifications (C13).
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
	ListUnreadNotifications(ctx context.Context, recipientUserID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error

	Close() error
}
