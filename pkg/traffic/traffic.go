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

// Package traffic implements C12, the Traffic Reroute Engine: a
// periodic cycle over every in-progress trip that probes live traffic,
// classifies severity, generates and filters alternative routes, and
// surfaces the best one as a RouteRecommendation with a notification
// fanout and a domain event. Each trip's probe, scoring, and fanout
// runs independently within the cycle, so one provider failure on one
// trip never blocks the rest of the sweep.
package traffic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/internal/objectid"
	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/broker"
	"github.com/samfms/scf/pkg/eventbus"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/trips"
)

// Configuration defaults from spec §4.12/§6.
const (
	defaultMinimumTimeSavings = 600.0 // seconds
	maxNativeAlternatives     = 3
	maxTotalAlternatives      = 5
	similaritySamples         = 20
	landmarkMinDistanceKM     = 100.0
	landmarkMinDetourRatio    = 1.10
	landmarkMaxDetourRatio    = 1.80
	perturbationOffsetKM      = 5.0
	landmarkOffsetKM          = 40.0

	standardSimilarityCeiling = 0.70
	waypointSimilarityCeiling = 0.85
)

// severity classifies the live/free-flow traffic ratio per spec §4.12
// step 2.
func severity(ratio float64) trips.TrafficSeverity {
	switch {
	case ratio >= 2.0:
		return trips.SeveritySevere
	case ratio >= 1.5:
		return trips.SeverityHeavy
	case ratio >= 1.3:
		return trips.SeverityModerate
	default:
		return trips.SeverityLight
	}
}

// needsReroute reports whether severity warrants generating alternatives
// at all (spec §4.12 step 3: "If severity ∈ {heavy, severe}").
func needsReroute(s trips.TrafficSeverity) bool {
	return s == trips.SeverityHeavy || s == trips.SeveritySevere
}

// minimumSavingsFor relaxes the configured minimum time-savings
// threshold for more severe traffic (spec §4.12 step 3).
func minimumSavingsFor(s trips.TrafficSeverity, configured float64) float64 {
	switch s {
	case trips.SeveritySevere:
		return configured * 0.30
	case trips.SeverityHeavy:
		return configured * 0.50
	default:
		return configured
	}
}

// confidenceFor implements spec §4.12 step 3's confidence formula.
func confidenceFor(savingsSeconds float64) float64 {
	c := 0.60 + savingsSeconds/1800.0
	if c > 0.95 {
		return 0.95
	}
	return c
}

// ReroutedTripEvent is published on the trip domain's topic exchange
// whenever a recommendation is emitted, so other services can react
// without polling notifications (spec §4.3's event-bus convention,
// routing key "trip.reroute_suggested").
type ReroutedTripEvent struct {
	TripID           string  `json:"trip_id"`
	RecommendationID string  `json:"recommendation_id"`
	TimeSavingsS     float64 `json:"time_savings_s"`
	Severity         string  `json:"traffic_severity"`
}

// TripEventsExchange is the topic exchange the engine publishes
// reroute-suggested events on.
const TripEventsExchange = "trip_events"

// ReroutedRoutingKey is the fixed routing key for ReroutedTripEvent.
const ReroutedRoutingKey = "trip.reroute_suggested"

// managerRole is who, along with the trip's own driver, gets notified on
// a new recommendation (spec §4.12 step 4).
var managerRole = []authgate.Role{authgate.RoleManager}

// Engine runs the periodic reroute cycle.
type Engine struct {
	store   trips.Store
	routing providers.RoutingProvider
	traffic providers.TrafficProvider
	fanout  *notify.Fanout
	bus     *eventbus.Bus
	eventCh *broker.Channel // nil disables event publication, e.g. in tests
	logger  *zap.Logger

	minimumTimeSavings float64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithMinimumTimeSavings overrides MINIMUM_TIME_SAVINGS.
func WithMinimumTimeSavings(seconds float64) Option {
	return func(e *Engine) { e.minimumTimeSavings = seconds }
}

// WithEventPublication wires the engine to publish ReroutedTripEvent on
// bus/ch; omitting this option disables event publication entirely.
func WithEventPublication(bus *eventbus.Bus, ch *broker.Channel) Option {
	return func(e *Engine) { e.bus = bus; e.eventCh = ch }
}

// New constructs an Engine.
func New(store trips.Store, routing providers.RoutingProvider, traffic providers.TrafficProvider, fanout *notify.Fanout, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		routing:            routing,
		traffic:            traffic,
		fanout:             fanout,
		logger:             logging.NopIfNil(logger),
		minimumTimeSavings: defaultMinimumTimeSavings,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cycle is the C8 scheduler task body, run every TRAFFIC_CHECK_INTERVAL
// (spec §4.12). A single trip's provider failure is logged and skipped;
// the cycle always completes.
func (e *Engine) Cycle(ctx context.Context) error {
	activeTrips, err := e.store.ListTrips(ctx, trips.TripFilter{Status: trips.StatusInProgress})
	if err != nil {
		return err
	}

	for _, trip := range activeTrips {
		if err := e.evaluateTrip(ctx, trip); err != nil {
			e.logger.Warn("traffic: skipping trip after evaluation error",
				zap.String("trip_id", trip.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) evaluateTrip(ctx context.Context, trip trips.Trip) error {
	if trip.VehicleID == "" {
		return nil
	}

	position, ok, err := e.store.GetVehicleLocation(ctx, trip.VehicleID)
	if err != nil {
		return fmt.Errorf("loading vehicle position: %w", err)
	}
	if !ok {
		return nil
	}

	destination := trip.Destination.Location
	currentRoute, err := e.routing.Route(ctx, []geo.Point{position.Location, destination})
	if err != nil {
		return fmt.Errorf("probing current route: %w", err)
	}

	now := time.Now().UTC()
	liveDuration, err := e.traffic.LiveDuration(ctx, currentRoute, now)
	if err != nil {
		return fmt.Errorf("probing live traffic: %w", err)
	}

	// Rounded to 6 decimals so the nanosecond truncation of liveDuration
	// cannot pull an exact threshold ratio (e.g. 2.0) just below it.
	ratio := math.Round(liveDuration.Seconds()/positiveOr(currentRoute.DurationS, 1)*1e6) / 1e6
	sev := severity(ratio)
	if !needsReroute(sev) {
		return nil
	}

	candidates := e.generateAlternatives(ctx, position.Location, destination, currentRoute)

	minSavings := minimumSavingsFor(sev, e.minimumTimeSavings)
	best, bestSavings, found := e.bestCandidate(ctx, currentRoute, liveDuration, candidates, now, minSavings)
	if !found {
		return nil
	}

	existingRoute := trips.RouteInfo{}
	if trip.RouteInfo != nil {
		existingRoute = *trip.RouteInfo
	}

	rec := trips.RouteRecommendation{
		ID:               objectid.New(),
		TripID:           trip.ID,
		VehicleID:        trip.VehicleID,
		CurrentRoute:     existingRoute,
		RecommendedRoute: toRouteInfo(best.route),
		TimeSavingsS:     bestSavings,
		TrafficSeverity:  sev,
		Confidence:       confidenceFor(bestSavings),
		Reason: fmt.Sprintf("%s traffic (ratio %.2f) adds %.0fs over free flow; the %s alternative saves %.0fs",
			sev, ratio, liveDuration.Seconds()-currentRoute.DurationS, best.origin, bestSavings),
	}
	if _, err := e.store.PutRouteRecommendation(ctx, rec); err != nil {
		return fmt.Errorf("persisting recommendation: %w", err)
	}

	e.notifyRecommendation(ctx, trip, rec)
	e.publishRecommendation(ctx, rec)
	return nil
}

// candidateOrigin names which generation strategy produced an
// alternative, used both for the similarity-filter ceiling and the
// recommendation's human-readable reason.
type candidateOrigin string

const (
	originNative    candidateOrigin = "native"
	originWaypoint  candidateOrigin = "waypoint-perturbed"
	originLandmark  candidateOrigin = "landmark-detour"
)

type candidate struct {
	route  providers.Route
	origin candidateOrigin
}

// generateAlternatives implements spec §4.12 step 3's layered strategy:
// native provider alternatives first, then waypoint-perturbed offsets,
// then major-landmark detours when the trip is long enough to make one
// plausible. It never returns more than maxTotalAlternatives and logs
// rather than aborts on any single probe's failure.
func (e *Engine) generateAlternatives(ctx context.Context, origin, destination geo.Point, current providers.Route) []candidate {
	var out []candidate

	native, err := e.routing.Alternatives(ctx, origin, destination, maxNativeAlternatives)
	if err != nil {
		e.logger.Warn("traffic: native alternatives probe failed", zap.Error(err))
	}
	for _, r := range native {
		out = append(out, candidate{route: r, origin: originNative})
	}

	for _, offsetKM := range []float64{perturbationOffsetKM, -perturbationOffsetKM} {
		if len(out) >= maxTotalAlternatives {
			return out[:maxTotalAlternatives]
		}
		waypoint := geo.OffsetPerpendicular(origin, destination, offsetKM)
		r, err := e.routing.Route(ctx, []geo.Point{origin, waypoint, destination})
		if err != nil {
			e.logger.Warn("traffic: waypoint-perturbed route probe failed", zap.Float64("offset_km", offsetKM), zap.Error(err))
			continue
		}
		out = append(out, candidate{route: r, origin: originWaypoint})
	}

	if geo.HaversineKM(origin, destination) > landmarkMinDistanceKM && len(out) < maxTotalAlternatives {
		landmark := geo.OffsetPerpendicular(origin, destination, landmarkOffsetKM)
		r, err := e.routing.Route(ctx, []geo.Point{origin, landmark, destination})
		if err != nil {
			e.logger.Warn("traffic: landmark-detour route probe failed", zap.Error(err))
		} else {
			detourRatio := r.DistanceM / positiveOr(current.DistanceM, 1)
			if detourRatio >= landmarkMinDetourRatio && detourRatio <= landmarkMaxDetourRatio {
				out = append(out, candidate{route: r, origin: originLandmark})
			}
		}
	}

	if len(out) > maxTotalAlternatives {
		out = out[:maxTotalAlternatives]
	}
	return out
}

type scoredCandidate struct {
	route  providers.Route
	origin candidateOrigin
}

// bestCandidate applies the similarity filter and time-savings threshold
// to every candidate and returns the one with the largest savings (spec
// §4.12 step 3).
func (e *Engine) bestCandidate(ctx context.Context, current providers.Route, currentLiveDuration time.Duration, candidates []candidate, departure time.Time, minSavings float64) (scoredCandidate, float64, bool) {
	var best scoredCandidate
	var bestSavings float64
	found := false

	for _, c := range candidates {
		similarity := geo.RouteSimilarity(current.Coordinates, c.route.Coordinates, similaritySamples)
		ceiling := standardSimilarityCeiling
		if c.origin != originNative {
			ceiling = waypointSimilarityCeiling
		}
		if similarity > ceiling {
			continue
		}

		altLiveDuration, err := e.traffic.LiveDuration(ctx, c.route, departure)
		if err != nil {
			e.logger.Warn("traffic: alternative traffic probe failed", zap.Error(err))
			continue
		}

		savings := currentLiveDuration.Seconds() - altLiveDuration.Seconds()
		if savings < minSavings {
			continue
		}
		if !found || savings > bestSavings {
			best = scoredCandidate{route: c.route, origin: c.origin}
			bestSavings = savings
			found = true
		}
	}
	return best, bestSavings, found
}

func (e *Engine) notifyRecommendation(ctx context.Context, trip trips.Trip, rec trips.RouteRecommendation) {
	if e.fanout == nil {
		return
	}
	req := notify.Request{
		RecipientRoles: managerRole,
		Type:           "reroute_suggested",
		Title:          "Faster route available",
		Message:        fmt.Sprintf("A reroute could save about %.0f minutes.", rec.TimeSavingsS/60),
		Data: map[string]any{
			"trip_id":           trip.ID,
			"recommendation_id": rec.ID,
			"time_savings_s":    rec.TimeSavingsS,
		},
	}
	if trip.DriverID != "" {
		req.RecipientUserIDs = []string{trip.DriverID}
	}
	if _, err := e.fanout.Notify(ctx, req); err != nil {
		e.logger.Warn("traffic: failed to notify recommendation recipients", zap.String("trip_id", trip.ID), zap.Error(err))
	}
}

func (e *Engine) publishRecommendation(ctx context.Context, rec trips.RouteRecommendation) {
	if e.bus == nil || e.eventCh == nil {
		return
	}
	payload, err := json.Marshal(ReroutedTripEvent{
		TripID:           rec.TripID,
		RecommendationID: rec.ID,
		TimeSavingsS:     rec.TimeSavingsS,
		Severity:         string(rec.TrafficSeverity),
	})
	if err != nil {
		e.logger.Warn("traffic: failed to marshal reroute event", zap.Error(err))
		return
	}
	if err := e.bus.Publish(ctx, e.eventCh, TripEventsExchange, ReroutedRoutingKey, payload); err != nil {
		e.logger.Warn("traffic: failed to publish reroute event", zap.String("trip_id", rec.TripID), zap.Error(err))
	}
}

// Accept replaces trip.route_info with the recommended route and
// deletes the recommendation (spec §4.12 step 5).
func (e *Engine) Accept(ctx context.Context, recommendationID string) (trips.Trip, error) {
	rec, err := e.store.GetRouteRecommendation(ctx, recommendationID)
	if err != nil {
		return trips.Trip{}, err
	}
	updated, err := e.store.UpdateTripRoute(ctx, rec.TripID, rec.RecommendedRoute)
	if err != nil {
		return trips.Trip{}, err
	}
	if err := e.store.DeleteRouteRecommendation(ctx, recommendationID); err != nil {
		e.logger.Warn("traffic: accepted recommendation but failed to delete it", zap.String("recommendation_id", recommendationID), zap.Error(err))
	}
	return updated, nil
}

// Reject deletes the recommendation without touching the trip's route
// (spec §4.12 step 5).
func (e *Engine) Reject(ctx context.Context, recommendationID string) error {
	return e.store.DeleteRouteRecommendation(ctx, recommendationID)
}

// toRouteInfo converts a provider's candidate Route into the trip
// domain's persisted RouteInfo shape, the same conversion the Smart
// Trip Planner (C10) performs when it commits its chosen route.
func toRouteInfo(r providers.Route) trips.RouteInfo {
	info := trips.RouteInfo{
		DistanceM:   r.DistanceM,
		DurationS:   r.DurationS,
		Coordinates: r.Coordinates,
	}
	if bounds, ok := geo.ComputeBounds(r.Coordinates); ok {
		info.Bounds = &bounds
	}
	return info
}

func positiveOr(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
