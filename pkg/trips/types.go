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

// Package trips implements C9, the trip domain store: the entities and
// collections backing scheduled/active/historical trips, vehicle
// assignments, location tracking, ping sessions, and notifications.
// Persisted relationally (jackc/pgx, jmoiron/sqlx, goose migrations)
// rather than as documents, since nothing else in this module needs a
// document store.
package trips

import (
	"time"

	"github.com/samfms/scf/internal/geo"
)

// TripStatus is the trip lifecycle state, per spec §3/§5's transition
// graph scheduled -> in_progress -> {paused, completed, cancelled}.
type TripStatus string

const (
	StatusScheduled  TripStatus = "scheduled"
	StatusInProgress TripStatus = "in_progress"
	StatusPaused     TripStatus = "paused"
	StatusCompleted  TripStatus = "completed"
	StatusCancelled  TripStatus = "cancelled"
)

// IsTerminal reports whether s is a state the trip never leaves, the
// trigger for the atomic trips -> trip_history move (spec §4.9).
func (s TripStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority ranks a trip for driver-selection purposes (spec §4.10).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsElevated reports whether p requires completion-rate-ranked driver
// selection rather than uniform-random selection (spec §4.10 step 4).
func (p Priority) IsElevated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// Place is a named location with coordinates, per spec §3.
type Place struct {
	Name     string    `json:"name" db:"name"`
	Location geo.Point `json:"location" db:"-"`
	Address  string    `json:"address,omitempty" db:"address"`
}

// RouteInfo is the realized or recommended route geometry and cost for a
// trip, per spec §3.
type RouteInfo struct {
	DistanceM   float64     `json:"distance_m"`
	DurationS   float64     `json:"duration_s"`
	Coordinates []geo.Point `json:"coordinates"`
	Bounds      *geo.Bounds `json:"bounds,omitempty"`
}

// Trip is the committed, schedulable or active unit of work, per spec §3.
type Trip struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Description    string     `json:"description,omitempty" db:"description"`
	Origin         Place      `json:"origin" db:"-"`
	Destination    Place      `json:"destination" db:"-"`
	Waypoints      []Place    `json:"waypoints,omitempty" db:"-"`
	VehicleID      string     `json:"vehicle_id,omitempty" db:"vehicle_id"`
	DriverID       string     `json:"driver_id,omitempty" db:"driver_id"`
	Status         TripStatus `json:"status" db:"status"`
	Priority       Priority   `json:"priority" db:"priority"`
	ScheduledStart time.Time  `json:"scheduled_start" db:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end" db:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty" db:"actual_start"`
	ActualEnd      *time.Time `json:"actual_end,omitempty" db:"actual_end"`
	RouteInfo      *RouteInfo `json:"route_info,omitempty" db:"-"`
	CreatedBy      string     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// ScheduledTrip is a Trip that has a planning window but no committed
// start time yet (spec §3).
type ScheduledTrip struct {
	Trip
	StartWindow time.Time `json:"start_window"`
	EndWindow   time.Time `json:"end_window"`
}

// SmartTrip is the Smart Trip Planner's (C10) output for one
// ScheduledTrip: a concrete departure/vehicle/driver recommendation. It is
// consumed (deleted) once the referenced trip is activated (spec §3).
type SmartTrip struct {
	ID             string    `json:"id" db:"id"`
	ScheduledTripID string   `json:"scheduled_trip_id" db:"scheduled_trip_id"`
	OptimizedStart time.Time `json:"optimized_start" db:"optimized_start"`
	OptimizedEnd   time.Time `json:"optimized_end" db:"optimized_end"`
	VehicleID      string    `json:"vehicle_id" db:"vehicle_id"`
	DriverID       string    `json:"driver_id" db:"driver_id"`
	RouteInfo      RouteInfo `json:"route_info" db:"-"`
	Reasoning      []string  `json:"reasoning" db:"-"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TrafficSeverity classifies how much a live route has degraded relative
// to its free-flow duration (spec §4.12).
type TrafficSeverity string

const (
	SeverityLight    TrafficSeverity = "light"
	SeverityModerate TrafficSeverity = "moderate"
	SeverityHeavy    TrafficSeverity = "heavy"
	SeveritySevere   TrafficSeverity = "severe"
)

// RouteRecommendation is one candidate reroute surfaced by the Traffic
// Reroute Engine (C12), pending accept/reject (spec §3).
type RouteRecommendation struct {
	ID              string          `json:"id" db:"id"`
	TripID          string          `json:"trip_id" db:"trip_id"`
	VehicleID       string          `json:"vehicle_id" db:"vehicle_id"`
	CurrentRoute    RouteInfo       `json:"current_route" db:"-"`
	RecommendedRoute RouteInfo      `json:"recommended_route" db:"-"`
	TimeSavingsS    float64         `json:"time_savings_s" db:"time_savings_s"`
	TrafficSeverity TrafficSeverity `json:"traffic_severity" db:"traffic_severity"`
	Confidence      float64         `json:"confidence" db:"confidence"`
	Reason          string          `json:"reason" db:"reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// VehicleAssignment records a driver/vehicle pairing for a trip. At most
// one assignment per vehicle (and per driver) may have End == nil at a
// time (spec §5).
type VehicleAssignment struct {
	ID        string     `json:"id" db:"id"`
	TripID    string     `json:"trip_id" db:"trip_id"`
	VehicleID string     `json:"vehicle_id" db:"vehicle_id"`
	DriverID  string     `json:"driver_id" db:"driver_id"`
	Start     time.Time  `json:"start" db:"start_time"`
	End       *time.Time `json:"end,omitempty" db:"end_time"`
}

// IsActive reports whether the assignment is still open.
func (a VehicleAssignment) IsActive() bool { return a.End == nil }

// VehicleLocation is the vehicle's current upserted position (spec §3).
type VehicleLocation struct {
	VehicleID string    `json:"vehicle_id" db:"vehicle_id"`
	Location  geo.Point `json:"location" db:"-"`
	SpeedKMH  float64   `json:"speed_kmh" db:"speed_kmh"`
	Heading   float64   `json:"heading,omitempty" db:"heading"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LocationHistory is one append-only sample of a vehicle's position
// (spec §3), keyed by (vehicle_id, timestamp).
type LocationHistory struct {
	VehicleID string    `json:"vehicle_id" db:"vehicle_id"`
	Location  geo.Point `json:"location" db:"-"`
	SpeedKMH  float64   `json:"speed_kmh" db:"speed_kmh"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// TrackingSession is the generic envelope around an active tracking
// window; PingSession (C11) is the trip-specific specialization spec §3
// names separately.
type TrackingSession struct {
	ID        string    `json:"id" db:"id"`
	VehicleID string    `json:"vehicle_id" db:"vehicle_id"`
	TripID    string    `json:"trip_id" db:"trip_id"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// PingSession tracks the driver-ping watchdog state for one in-progress
// trip. Exactly one active session may exist per trip (spec §3/§4.11).
type PingSession struct {
	TripID             string    `json:"trip_id" db:"trip_id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	LastPingAt         time.Time `json:"last_ping_at" db:"last_ping_at"`
	NextPingExpectedAt time.Time `json:"next_ping_expected_at" db:"next_ping_expected_at"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	ViolationsCount    int       `json:"violations_count" db:"violations_count"`
}

// ViolationType enumerates the kinds of driver-ping violations spec
// §4.11 defines.
type ViolationType string

const (
	ViolationMissedPing ViolationType = "missed_ping"
	ViolationSpeeding   ViolationType = "speeding"
)

// Violation is one recorded infraction against a trip's ping session
// (spec §3).
type Violation struct {
	ID      string        `json:"id" db:"id"`
	TripID  string        `json:"trip_id" db:"trip_id"`
	Type    ViolationType `json:"type" db:"type"`
	Details string        `json:"details" db:"details"`
	At      time.Time     `json:"at" db:"at"`
}

// Notification is one concrete, recipient-resolved message (spec §3,
// §4.13). Fanout resolves recipient_user_ids/recipient_roles into one row
// per concrete recipient at write time.
type Notification struct {
	ID            string          `json:"id" db:"id"`
	RecipientUserID string        `json:"recipient_user_id" db:"recipient_user_id"`
	Type          string          `json:"type" db:"type"`
	Title         string          `json:"title" db:"title"`
	Message       string          `json:"message" db:"message"`
	Data          map[string]any  `json:"data,omitempty" db:"-"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ReadAt        *time.Time      `json:"read_at,omitempty" db:"read_at"`
}
