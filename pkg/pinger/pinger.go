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

// Package pinger implements C11, the Driver-Ping & Speed Monitor: a
// PingSession is opened when a trip goes in_progress and closed with its
// owning trip; each phone ping refreshes the session's deadline and is
// checked against a speed limit, and a watchdog task appends a
// missed_ping violation for any session whose deadline has passed: an
// RPC handler owns the synchronous open/ping/close calls, and a
// scheduler task owns the asynchronous deadline sweep, the same split
// this module uses anywhere a request-driven state change needs a
// background watchdog over its own deadlines.
package pinger

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/trips"
)

// dispatcherRole is who WatchdogTick notifies on a missed ping (spec
// §4.11: "notify the dispatcher role").
var dispatcherRole = []authgate.Role{authgate.RoleDispatcher}

// defaultInterval and defaultGrace back PING_INTERVAL/PING_GRACE when the
// caller doesn't override them (spec §4.11 / §6 configuration list).
const (
	defaultInterval = 30 * time.Second
	defaultGrace    = 30 * time.Second
)

// Monitor ties trip-status transitions, phone pings, and the watchdog
// task together.
type Monitor struct {
	store       trips.Store
	speedLimits providers.SpeedLimitProvider
	fanout      *notify.Fanout
	logger      *zap.Logger

	interval time.Duration
	grace    time.Duration
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithInterval overrides PING_INTERVAL.
func WithInterval(d time.Duration) Option { return func(m *Monitor) { m.interval = d } }

// WithGrace overrides PING_GRACE.
func WithGrace(d time.Duration) Option { return func(m *Monitor) { m.grace = d } }

// New constructs a Monitor.
func New(store trips.Store, speedLimits providers.SpeedLimitProvider, fanout *notify.Fanout, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		store:       store,
		speedLimits: speedLimits,
		fanout:      fanout,
		logger:      logging.NopIfNil(logger),
		interval:    defaultInterval,
		grace:       defaultGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenSession creates the PingSession for a trip that has just
// transitioned to in_progress (spec §4.11's lifecycle trigger).
func (m *Monitor) OpenSession(ctx context.Context, tripID string, now time.Time) (trips.PingSession, error) {
	s := trips.PingSession{
		TripID:             tripID,
		StartedAt:          now,
		LastPingAt:         now,
		NextPingExpectedAt: now.Add(m.interval),
		IsActive:           true,
	}
	return m.store.OpenPingSession(ctx, s)
}

// CloseSession ends the PingSession for a trip that has just left
// in_progress (spec §4.11: "sessions terminate with the owning trip").
func (m *Monitor) CloseSession(ctx context.Context, tripID string) error {
	return m.store.CloseActivePingSession(ctx, tripID)
}

// PingResult is the response shape spec §4.11 names for a ping handler.
type PingResult struct {
	PingReceivedAt     time.Time `json:"ping_received_at"`
	NextPingExpectedAt time.Time `json:"next_ping_expected_at"`
	SessionActive      bool      `json:"session_active"`
	ViolationsCount    int       `json:"violations_count"`
	SpeedLimitKMH      float64   `json:"speed_limit"`
	CurrentSpeedKMH    float64   `json:"current_speed"`
	IsSpeeding         bool      `json:"is_speeding"`
	SpeedOverLimitKMH  float64   `json:"speed_over_limit"`
}

// Ping handles one `ping(trip_id, location, timestamp)` call (spec
// §4.11). providedSpeedKMH, when >= 0, is used instead of deriving speed
// from the previous fix and elapsed time — the phone may report its own
// GPS-derived speed.
func (m *Monitor) Ping(ctx context.Context, tripID string, location geo.Point, at time.Time, providedSpeedKMH float64) (PingResult, error) {
	trip, err := m.store.GetTrip(ctx, tripID)
	if err != nil {
		return PingResult{}, err
	}
	if trip.Status != trips.StatusInProgress {
		return PingResult{}, apperrors.New(apperrors.TypeBusinessRule, "ping rejected: trip is not in_progress")
	}

	session, ok, err := m.store.GetActivePingSession(ctx, tripID)
	if err != nil {
		return PingResult{}, err
	}
	if !ok {
		return PingResult{}, apperrors.New(apperrors.TypeBusinessRule, "ping rejected: trip has no active ping session")
	}

	speedKMH := providedSpeedKMH
	if speedKMH < 0 {
		speedKMH = m.deriveSpeed(trip.VehicleID, location, at)
	}

	limit, err := m.speedLimits.SpeedLimitKMH(ctx, location)
	if err != nil {
		limit = providers.DefaultSpeedLimitKMH
	}

	session.LastPingAt = at
	session.NextPingExpectedAt = at.Add(m.interval)

	isSpeeding := speedKMH > limit
	over := 0.0
	if isSpeeding {
		over = speedKMH - limit
		session.ViolationsCount++
		if _, err := m.store.RecordViolation(ctx, trips.Violation{
			TripID:  tripID,
			Type:    trips.ViolationSpeeding,
			Details: speedingDetails(speedKMH, limit),
			At:      at,
		}); err != nil {
			m.logger.Warn("pinger: failed to record speeding violation", zap.String("trip_id", tripID), zap.Error(err))
		}
	}

	if err := m.store.UpdatePingSession(ctx, session); err != nil {
		return PingResult{}, err
	}

	if err := m.store.UpsertVehicleLocation(ctx, trips.VehicleLocation{
		VehicleID: trip.VehicleID,
		Location:  location,
		SpeedKMH:  speedKMH,
		UpdatedAt: at,
	}); err != nil {
		m.logger.Warn("pinger: failed to upsert vehicle location", zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}
	if err := m.store.AppendLocationHistory(ctx, trips.LocationHistory{
		VehicleID: trip.VehicleID,
		Location:  location,
		SpeedKMH:  speedKMH,
		Timestamp: at,
	}); err != nil {
		m.logger.Warn("pinger: failed to append location history", zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}

	return PingResult{
		PingReceivedAt:     at,
		NextPingExpectedAt: session.NextPingExpectedAt,
		SessionActive:      session.IsActive,
		ViolationsCount:    session.ViolationsCount,
		SpeedLimitKMH:      limit,
		CurrentSpeedKMH:    speedKMH,
		IsSpeeding:         isSpeeding,
		SpeedOverLimitKMH:  over,
	}, nil
}

// deriveSpeed computes current speed from the vehicle's last known fix
// and elapsed time when the phone hasn't reported its own speed.
func (m *Monitor) deriveSpeed(vehicleID string, location geo.Point, at time.Time) float64 {
	prev, ok, err := m.store.GetVehicleLocation(context.Background(), vehicleID)
	if err != nil || !ok {
		return 0
	}
	elapsed := at.Sub(prev.UpdatedAt).Hours()
	if elapsed <= 0 {
		return 0
	}
	return geo.HaversineKM(prev.Location, location) / elapsed
}

func speedingDetails(speedKMH, limitKMH float64) string {
	return "speed " + formatKMH(speedKMH) + " over limit " + formatKMH(limitKMH)
}

func formatKMH(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "km/h"
}

// WatchdogTick is the C8 scheduler task body: for every active session
// past its grace deadline, it appends one missed_ping violation and
// notifies the dispatcher role (spec §4.11's watchdog, run every 30s).
func (m *Monitor) WatchdogTick(ctx context.Context) error {
	sessions, err := m.store.ListActivePingSessions(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, s := range sessions {
		if !now.After(s.NextPingExpectedAt.Add(m.grace)) {
			continue
		}

		s.ViolationsCount++
		if _, err := m.store.RecordViolation(ctx, trips.Violation{
			TripID:  s.TripID,
			Type:    trips.ViolationMissedPing,
			Details: "no ping received within interval + grace",
			At:      now,
		}); err != nil {
			m.logger.Warn("pinger: failed to record missed-ping violation", zap.String("trip_id", s.TripID), zap.Error(err))
			continue
		}
		// Re-arm the deadline so a single miss doesn't fire repeatedly
		// every tick until the next real ping arrives.
		s.NextPingExpectedAt = now.Add(m.interval)
		if err := m.store.UpdatePingSession(ctx, s); err != nil {
			m.logger.Warn("pinger: failed to re-arm ping session deadline", zap.String("trip_id", s.TripID), zap.Error(err))
		}

		if m.fanout != nil {
			if _, err := m.fanout.Notify(ctx, notify.Request{
				RecipientRoles: dispatcherRole,
				Type:           "missed_ping",
				Title:          "Missed driver ping",
				Message:        "A driver has not pinged within the expected window.",
				Data:           map[string]any{"trip_id": s.TripID},
			}); err != nil {
				m.logger.Warn("pinger: failed to notify dispatcher role", zap.String("trip_id", s.TripID), zap.Error(err))
			}
		}
	}
	return nil
}
