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

// Handlers registered on the C2 router, one per domain operation this
// process exposes to the gateway. Each follows the rpc.Handler
// signature: decode data, call the owning component, return a value
// Success/Failure can marshal.
package main

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/internal/objectid"
	"github.com/samfms/scf/pkg/pinger"
	"github.com/samfms/scf/pkg/planner"
	"github.com/samfms/scf/pkg/rpc"
	"github.com/samfms/scf/pkg/traffic"
	"github.com/samfms/scf/pkg/trips"
)

// registerHandlers binds every domain endpoint this service answers to
// the router built in main.go. Endpoint names follow the gateway's
// "<resource>/<action>" convention; timeouts of 0 fall back
// to the router's default.
func registerHandlers(
	router *rpc.Router,
	store trips.Store,
	tripPlanner *planner.Planner,
	pingMonitor *pinger.Monitor,
	rerouteEngine *traffic.Engine,
) {
	h := &handlers{store: store, planner: tripPlanner, pinger: pingMonitor, reroute: rerouteEngine}

	router.Handle("trips", 0, h.trips)
	router.Handle("scheduled-trips", 0, h.scheduledTrips)
	router.Handle("assignments", 0, h.assignments)
	router.Handle("vehicles", 0, h.vehicles)
	router.Handle("ping", 10*time.Second, h.ping)
	router.Handle("route-recommendations", 0, h.routeRecommendations)
	router.Handle("notifications", 0, h.notifications)
}

type handlers struct {
	store   trips.Store
	planner *planner.Planner
	pinger  *pinger.Monitor
	reroute *traffic.Engine
}

// decode unmarshals data into v, surfacing a malformed body as a
// Validation error rather than an opaque Internal one.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(err, apperrors.TypeValidation, "malformed request body")
	}
	return nil
}

// --- trips -----------------------------------------------------------

func (h *handlers) trips(ctx context.Context, method, _, residual string, uc rpc.UserContext, data json.RawMessage) (any, error) {
	switch method {
	case "create":
		var req trips.Trip
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		req.ID = objectid.New()
		req.CreatedBy = uc.UserID
		req.Status = trips.StatusScheduled
		now := time.Now().UTC()
		req.CreatedAt, req.UpdatedAt = now, now
		return h.store.CreateTrip(ctx, req)

	case "get":
		return h.store.GetTrip(ctx, residual)

	case "list":
		var filter trips.TripFilter
		if err := decode(data, &filter); err != nil {
			return nil, err
		}
		return h.store.ListTrips(ctx, filter)

	case "update_status":
		var req struct {
			Status trips.TripStatus `json:"status"`
		}
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return h.updateTripStatus(ctx, residual, req.Status)

	case "update_route":
		var req trips.RouteInfo
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		return h.store.UpdateTripRoute(ctx, residual, req)

	case "history":
		return h.store.GetTripHistory(ctx, residual)

	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "trips: unsupported method %q", method)
	}
}

// updateTripStatus performs the status write and then orchestrates the
// ping-session lifecycle the pinger component doesn't own itself (spec
// §4.11's trigger is a trip-status transition, not a storage event).
func (h *handlers) updateTripStatus(ctx context.Context, tripID string, newStatus trips.TripStatus) (trips.Trip, error) {
	wasInProgress, err := h.tripIsInProgress(ctx, tripID)
	if err != nil {
		return trips.Trip{}, err
	}

	now := time.Now().UTC()
	updated, err := h.store.UpdateTripStatus(ctx, tripID, newStatus, now)
	if err != nil {
		return trips.Trip{}, err
	}

	switch {
	case newStatus == trips.StatusInProgress && !wasInProgress:
		if _, err := h.pinger.OpenSession(ctx, tripID, now); err != nil {
			return trips.Trip{}, err
		}
	case wasInProgress && newStatus != trips.StatusInProgress:
		if err := h.pinger.CloseSession(ctx, tripID); err != nil {
			return trips.Trip{}, err
		}
	}
	return updated, nil
}

func (h *handlers) tripIsInProgress(ctx context.Context, tripID string) (bool, error) {
	trip, err := h.store.GetTrip(ctx, tripID)
	if err != nil {
		return false, err
	}
	return trip.Status == trips.StatusInProgress, nil
}

// --- scheduled trips / smart planning ---------------------------------

func (h *handlers) scheduledTrips(ctx context.Context, method, _, residual string, uc rpc.UserContext, data json.RawMessage) (any, error) {
	switch method {
	case "create":
		var req trips.ScheduledTrip
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		req.ID = objectid.New()
		req.CreatedBy = uc.UserID
		req.Status = trips.StatusScheduled
		now := time.Now().UTC()
		req.CreatedAt, req.UpdatedAt = now, now
		return h.store.CreateScheduledTrip(ctx, req)

	case "get":
		return h.store.GetScheduledTrip(ctx, residual)

	case "delete":
		return nil, h.store.DeleteScheduledTrip(ctx, residual)

	case "plan":
		return h.planScheduledTrip(ctx, residual)

	case "activate":
		return h.activateScheduledTrip(ctx, residual)

	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "scheduled-trips: unsupported method %q", method)
	}
}

func (h *handlers) planScheduledTrip(ctx context.Context, scheduledTripID string) (trips.SmartTrip, error) {
	st, err := h.store.GetScheduledTrip(ctx, scheduledTripID)
	if err != nil {
		return trips.SmartTrip{}, err
	}
	return h.planner.Plan(ctx, st)
}

// activateScheduledTrip consumes the SmartTrip recommendation for a
// scheduled trip that is being activated: it writes the recommended
// route onto the underlying Trip and records the recommended
// vehicle/driver in a new vehicle assignment. The Trip's own
// vehicle_id/driver_id fields are not changed.
func (h *handlers) activateScheduledTrip(ctx context.Context, scheduledTripID string) (trips.Trip, error) {
	smart, err := h.store.GetSmartTripByScheduledTrip(ctx, scheduledTripID)
	if err != nil {
		return trips.Trip{}, err
	}

	updated, err := h.store.UpdateTripRoute(ctx, scheduledTripID, smart.RouteInfo)
	if err != nil {
		return trips.Trip{}, err
	}

	if _, err := h.store.CreateAssignment(ctx, trips.VehicleAssignment{
		ID:        objectid.New(),
		TripID:    scheduledTripID,
		VehicleID: smart.VehicleID,
		DriverID:  smart.DriverID,
		Start:     smart.OptimizedStart,
	}); err != nil {
		return trips.Trip{}, err
	}

	if err := h.store.DeleteSmartTrip(ctx, smart.ID); err != nil {
		return trips.Trip{}, err
	}
	return updated, nil
}

// --- vehicle assignments -----------------------------------------------

func (h *handlers) assignments(ctx context.Context, method, _, residual string, _ rpc.UserContext, data json.RawMessage) (any, error) {
	switch method {
	case "create":
		var req trips.VehicleAssignment
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		req.ID = objectid.New()
		if req.Start.IsZero() {
			req.Start = time.Now().UTC()
		}
		return h.store.CreateAssignment(ctx, req)

	case "end":
		return nil, h.store.EndAssignment(ctx, residual, time.Now().UTC())

	case "active_for_vehicle":
		assignment, ok, err := h.store.ActiveAssignmentForVehicle(ctx, residual)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewNotFoundError("active assignment")
		}
		return assignment, nil

	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "assignments: unsupported method %q", method)
	}
}

// --- vehicle location --------------------------------------------------

func (h *handlers) vehicles(ctx context.Context, method, _, residual string, _ rpc.UserContext, data json.RawMessage) (any, error) {
	switch method {
	case "upsert_location":
		var req trips.VehicleLocation
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		req.VehicleID = residual
		if req.UpdatedAt.IsZero() {
			req.UpdatedAt = time.Now().UTC()
		}
		if err := h.store.UpsertVehicleLocation(ctx, req); err != nil {
			return nil, err
		}
		if err := h.store.AppendLocationHistory(ctx, trips.LocationHistory{
			VehicleID: req.VehicleID,
			Location:  req.Location,
			SpeedKMH:  req.SpeedKMH,
			Timestamp: req.UpdatedAt,
		}); err != nil {
			return nil, err
		}
		return req, nil

	case "location":
		loc, ok, err := h.store.GetVehicleLocation(ctx, residual)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewNotFoundError("vehicle location")
		}
		return loc, nil

	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "vehicles: unsupported method %q", method)
	}
}

// --- driver ping ---------------------------------------------------------

func (h *handlers) ping(ctx context.Context, method, _, residual string, _ rpc.UserContext, data json.RawMessage) (any, error) {
	if method != "report" {
		return nil, apperrors.Newf(apperrors.TypeValidation, "ping: unsupported method %q", method)
	}

	var req struct {
		Location geo.Point `json:"location"`
		SpeedKMH float64   `json:"speed_kmh"`
	}
	req.SpeedKMH = -1
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return h.pinger.Ping(ctx, residual, req.Location, time.Now().UTC(), req.SpeedKMH)
}

// --- traffic reroute recommendations ------------------------------------

func (h *handlers) routeRecommendations(ctx context.Context, method, _, residual string, _ rpc.UserContext, _ json.RawMessage) (any, error) {
	switch method {
	case "accept":
		return h.reroute.Accept(ctx, residual)
	case "reject":
		return nil, h.reroute.Reject(ctx, residual)
	case "get":
		return h.store.GetRouteRecommendation(ctx, residual)
	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "route-recommendations: unsupported method %q", method)
	}
}

// --- notifications -------------------------------------------------------

func (h *handlers) notifications(ctx context.Context, method, _, residual string, uc rpc.UserContext, _ json.RawMessage) (any, error) {
	switch method {
	case "list_unread":
		recipient := residual
		if recipient == "" {
			recipient = uc.UserID
		}
		return h.store.ListUnreadNotifications(ctx, recipient)
	case "mark_read":
		return nil, h.store.MarkNotificationRead(ctx, residual, time.Now().UTC())
	default:
		return nil, apperrors.Newf(apperrors.TypeValidation, "notifications: unsupported method %q", method)
	}
}
