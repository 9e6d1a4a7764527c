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
	"sync"
	"time"

	"github.com/samfms/scf/internal/objectid"
)

// Memory is a process-local, single-mutex-guarded Store, grounded on
// internal/cache.Memory's same shape. Because every operation holds the
// one mutex for its whole duration, the per-trip-id and per-vehicle-id
// atomicity rules spec §5 requires fall out for free rather than needing
// a separate per-key lock table — the tradeoff the PostgreSQL
// implementation has to spend row locks on instead.
type Memory struct {
	mu sync.Mutex

	trips        map[string]Trip
	tripHistory  map[string]Trip
	scheduled    map[string]ScheduledTrip
	smartByID    map[string]SmartTrip
	smartBySched map[string]string // scheduledTripID -> smartTripID

	assignments       map[string]VehicleAssignment
	activeByVehicle   map[string]string // vehicleID -> assignment id, active only
	activeByDriver    map[string]string // driverID -> assignment id, active only
	locations         map[string]VehicleLocation
	locationHistory   []LocationHistory

	pingSessions      map[string]PingSession // tripID -> session, active only
	violations        map[string]Violation

	recommendations map[string]RouteRecommendation
	notifications   map[string]Notification

	clock func() time.Time
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		trips:           make(map[string]Trip),
		tripHistory:     make(map[string]Trip),
		scheduled:       make(map[string]ScheduledTrip),
		smartByID:       make(map[string]SmartTrip),
		smartBySched:    make(map[string]string),
		assignments:     make(map[string]VehicleAssignment),
		activeByVehicle: make(map[string]string),
		activeByDriver:  make(map[string]string),
		locations:       make(map[string]VehicleLocation),
		pingSessions:    make(map[string]PingSession),
		violations:      make(map[string]Violation),
		recommendations: make(map[string]RouteRecommendation),
		notifications:   make(map[string]Notification),
		clock:           time.Now,
	}
}

func (m *Memory) Close() error { return nil }

// --- trips / trip_history -------------------------------------------------

func (m *Memory) CreateTrip(ctx context.Context, t Trip) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = objectid.New()
	}
	now := m.clock()
	t.CreatedAt, t.UpdatedAt = now, now
	m.trips[t.ID] = t
	return t, nil
}

func (m *Memory) GetTrip(ctx context.Context, id string) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[id]
	if !ok {
		return Trip{}, errTripNotFound(id)
	}
	return t, nil
}

func (m *Memory) ListTrips(ctx context.Context, filter TripFilter) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Trip, 0, len(m.trips))
	for _, t := range m.trips {
		if matchesFilter(t, filter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matchesFilter(t Trip, f TripFilter) bool {
	if f.VehicleID != "" && t.VehicleID != f.VehicleID {
		return false
	}
	if f.DriverID != "" && t.DriverID != f.DriverID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// UpdateTripStatus applies the status transition and, if newStatus is
// terminal, moves the trip into trip_history and deletes it from trips in
// the same critical section so no reader ever observes it in both places
// or in neither (spec §4.9).
func (m *Memory) UpdateTripStatus(ctx context.Context, id string, newStatus TripStatus, now time.Time) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[id]
	if !ok {
		return Trip{}, errTripNotFound(id)
	}
	if !isValidTransition(t.Status, newStatus) {
		return Trip{}, errInvalidTransition(t.Status, newStatus)
	}

	t.Status = newStatus
	t.UpdatedAt = now
	switch {
	case newStatus == StatusInProgress && t.ActualStart == nil:
		t.ActualStart = &now
	case newStatus.IsTerminal() && t.ActualEnd == nil:
		t.ActualEnd = &now
	}

	if newStatus.IsTerminal() {
		m.tripHistory[id] = t
		delete(m.trips, id)
	} else {
		m.trips[id] = t
	}
	return t, nil
}

func (m *Memory) UpdateTripRoute(ctx context.Context, id string, route RouteInfo) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trips[id]
	if !ok {
		return Trip{}, errTripNotFound(id)
	}
	r := route
	t.RouteInfo = &r
	t.UpdatedAt = m.clock()
	m.trips[id] = t
	return t, nil
}

func (m *Memory) GetTripHistory(ctx context.Context, id string) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tripHistory[id]
	if !ok {
		return Trip{}, errTripNotFound(id)
	}
	return t, nil
}

func (m *Memory) ListTripHistory(ctx context.Context, filter TripFilter) ([]Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Trip, 0, len(m.tripHistory))
	for _, t := range m.tripHistory {
		if matchesFilter(t, filter) {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- scheduled trips -------------------------------------------------------

func (m *Memory) CreateScheduledTrip(ctx context.Context, st ScheduledTrip) (ScheduledTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.ID == "" {
		st.ID = objectid.New()
	}
	now := m.clock()
	st.CreatedAt, st.UpdatedAt = now, now
	if st.Status == "" {
		st.Status = StatusScheduled
	}
	m.scheduled[st.ID] = st
	return st, nil
}

func (m *Memory) GetScheduledTrip(ctx context.Context, id string) (ScheduledTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.scheduled[id]
	if !ok {
		return ScheduledTrip{}, errScheduledTripNotFound(id)
	}
	return st, nil
}

func (m *Memory) DeleteScheduledTrip(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scheduled, id)
	return nil
}

// --- smart trips -------------------------------------------------------

func (m *Memory) PutSmartTrip(ctx context.Context, st SmartTrip) (SmartTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.ID == "" {
		st.ID = objectid.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = m.clock()
	}
	m.smartByID[st.ID] = st
	m.smartBySched[st.ScheduledTripID] = st.ID
	return st, nil
}

func (m *Memory) GetSmartTripByScheduledTrip(ctx context.Context, scheduledTripID string) (SmartTrip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.smartBySched[scheduledTripID]
	if !ok {
		return SmartTrip{}, errSmartTripNotFound(scheduledTripID)
	}
	return m.smartByID[id], nil
}

func (m *Memory) DeleteSmartTrip(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.smartByID[id]
	if !ok {
		return nil
	}
	delete(m.smartByID, id)
	delete(m.smartBySched, st.ScheduledTripID)
	return nil
}

// --- vehicle assignments -------------------------------------------------------

// CreateAssignment enforces spec §8's assignment-exclusivity property: no
// two active assignments may share a vehicle_id OR a driver_id. Both
// presence checks and the insert happen under the same lock, so two
// concurrent callers can never both succeed for one vehicle or one driver.
func (m *Memory) CreateAssignment(ctx context.Context, a VehicleAssignment) (VehicleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.activeByVehicle[a.VehicleID]; active {
		return VehicleAssignment{}, errVehicleAlreadyAssigned(a.VehicleID)
	}
	if _, active := m.activeByDriver[a.DriverID]; active {
		return VehicleAssignment{}, errDriverAlreadyAssigned(a.DriverID)
	}

	if a.ID == "" {
		a.ID = objectid.New()
	}
	m.assignments[a.ID] = a
	if a.IsActive() {
		m.activeByVehicle[a.VehicleID] = a.ID
		m.activeByDriver[a.DriverID] = a.ID
	}
	return a, nil
}

func (m *Memory) EndAssignment(ctx context.Context, id string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[id]
	if !ok {
		return apperrorsNotFound("vehicle assignment", id)
	}
	a.End = &end
	m.assignments[id] = a
	if m.activeByVehicle[a.VehicleID] == id {
		delete(m.activeByVehicle, a.VehicleID)
	}
	if m.activeByDriver[a.DriverID] == id {
		delete(m.activeByDriver, a.DriverID)
	}
	return nil
}

func (m *Memory) ActiveAssignmentForVehicle(ctx context.Context, vehicleID string) (VehicleAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.activeByVehicle[vehicleID]
	if !ok {
		return VehicleAssignment{}, false, nil
	}
	return m.assignments[id], true, nil
}

// --- location tracking -------------------------------------------------------

func (m *Memory) UpsertVehicleLocation(ctx context.Context, loc VehicleLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = m.clock()
	}
	m.locations[loc.VehicleID] = loc
	return nil
}

func (m *Memory) GetVehicleLocation(ctx context.Context, vehicleID string) (VehicleLocation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[vehicleID]
	return loc, ok, nil
}

func (m *Memory) AppendLocationHistory(ctx context.Context, h LocationHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.Timestamp.IsZero() {
		h.Timestamp = m.clock()
	}
	m.locationHistory = append(m.locationHistory, h)
	return nil
}

func (m *Memory) PurgeLocationHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.locationHistory[:0]
	purged := 0
	for _, h := range m.locationHistory {
		if h.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, h)
	}
	m.locationHistory = kept
	return purged, nil
}

// --- ping sessions / violations -------------------------------------------------------

func (m *Memory) OpenPingSession(ctx context.Context, s PingSession) (PingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pingSessions[s.TripID]; ok && existing.IsActive {
		return PingSession{}, errPingSessionAlreadyActive(s.TripID)
	}
	s.IsActive = true
	m.pingSessions[s.TripID] = s
	return s, nil
}

func (m *Memory) GetActivePingSession(ctx context.Context, tripID string) (PingSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pingSessions[tripID]
	if !ok || !s.IsActive {
		return PingSession{}, false, nil
	}
	return s, true, nil
}

func (m *Memory) UpdatePingSession(ctx context.Context, s PingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingSessions[s.TripID] = s
	return nil
}

func (m *Memory) CloseActivePingSession(ctx context.Context, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.pingSessions[tripID]
	if !ok {
		return nil
	}
	s.IsActive = false
	m.pingSessions[tripID] = s
	return nil
}

func (m *Memory) ListActivePingSessions(ctx context.Context) ([]PingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PingSession, 0, len(m.pingSessions))
	for _, s := range m.pingSessions {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) RecordViolation(ctx context.Context, v Violation) (Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ID == "" {
		v.ID = objectid.New()
	}
	if v.At.IsZero() {
		v.At = m.clock()
	}
	m.violations[v.ID] = v
	return v, nil
}

// --- route recommendations -------------------------------------------------------

func (m *Memory) PutRouteRecommendation(ctx context.Context, r RouteRecommendation) (RouteRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = objectid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.clock()
	}
	m.recommendations[r.ID] = r
	return r, nil
}

func (m *Memory) GetRouteRecommendation(ctx context.Context, id string) (RouteRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recommendations[id]
	if !ok {
		return RouteRecommendation{}, errRecommendationNotFound(id)
	}
	return r, nil
}

func (m *Memory) DeleteRouteRecommendation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recommendations, id)
	return nil
}

// --- notifications -------------------------------------------------------

func (m *Memory) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = objectid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.clock()
	}
	m.notifications[n.ID] = n
	return n, nil
}

func (m *Memory) ListUnreadNotifications(ctx context.Context, recipientUserID string) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Notification, 0)
	for _, n := range m.notifications {
		if n.RecipientUserID == recipientUserID && n.ReadAt == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil
	}
	n.ReadAt = &at
	m.notifications[id] = n
	return nil
}
