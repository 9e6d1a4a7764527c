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

// Package planner implements C10, the Smart Trip Planner: it samples
// candidate departure times across a ScheduledTrip's window, scores
// each against live traffic, and selects a vehicle and driver for the
// winning candidate, through the same synchronous handler-over-
// interfaces construction (New(deps...) *Planner, all collaborators
// injected) every other SCF component uses.
package planner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/internal/objectid"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/trips"
)

// maxCandidates bounds the departure-sampling fan-out (spec §4.10 step
// 1: "k = min(5, floor(window/1h))").
const maxCandidates = 5

// topDriverPoolSize is how many of the highest-completion-rate drivers
// are considered for random selection when priority is elevated (spec
// §4.10 step 4).
const topDriverPoolSize = 5

// VehicleCandidate is an available vehicle considered for assignment.
type VehicleCandidate struct {
	VehicleID string
	Position  geo.Point // current GPS fix, or a configured home coordinate if none
}

// DriverCandidate is an available driver considered for assignment.
type DriverCandidate struct {
	DriverID string
}

// FleetDirectory resolves which vehicles and drivers are free throughout
// a candidate window. A concrete implementation would consult the trip
// store's assignment and shift-roster data; kept abstract here since
// rostering is out of this module's scope.
type FleetDirectory interface {
	AvailableVehicles(ctx context.Context, window time.Time, windowEnd time.Time) ([]VehicleCandidate, error)
	AvailableDrivers(ctx context.Context, window time.Time, windowEnd time.Time) ([]DriverCandidate, error)
}

// DriverAnalytics answers a driver's yearly completion rate, per spec
// §4.10 step 4 / SPEC_FULL §4.15. completed/(completed+cancelled); a
// driver with no resolved trips in the year has rate 0.
type DriverAnalytics interface {
	CompletionRate(ctx context.Context, driverID string, year int) (float64, error)
}

// Planner ties FleetDirectory, DriverAnalytics, and the routing/traffic
// providers into the smart-trip selection algorithm, persisting the
// result through a trips.Store.
type Planner struct {
	store     trips.Store
	fleet     FleetDirectory
	analytics DriverAnalytics
	routing   providers.RoutingProvider
	traffic   providers.TrafficProvider

	// rng is overridable by tests for deterministic driver selection.
	rng *rand.Rand
}

// New constructs a Planner. rng may be nil, in which case a
// time-seeded generator is used — tests should pass their own for
// determinism.
func New(store trips.Store, fleet FleetDirectory, analytics DriverAnalytics, routing providers.RoutingProvider, traffic providers.TrafficProvider, rng *rand.Rand) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{store: store, fleet: fleet, analytics: analytics, routing: routing, traffic: traffic, rng: rng}
}

// ErrNoDriverAvailable is returned when no driver satisfies availability
// for the selected window (spec §4.10 step 4).
var ErrNoDriverAvailable = apperrors.New(apperrors.TypeBusinessRule, "no driver available for the selected window")

// Plan executes the full smart-trip selection algorithm for a
// ScheduledTrip and persists the resulting SmartTrip.
func (p *Planner) Plan(ctx context.Context, st trips.ScheduledTrip) (trips.SmartTrip, error) {
	candidates := departureCandidates(st.StartWindow, st.EndWindow)
	if len(candidates) == 0 {
		return trips.SmartTrip{}, apperrors.New(apperrors.TypeValidation, "scheduled trip window is too short to sample a departure")
	}

	waypoints := routeWaypoints(st)
	baseRoute, err := p.routing.Route(ctx, waypoints)
	if err != nil {
		return trips.SmartTrip{}, apperrors.Wrap(err, apperrors.TypeUpstream, "computing base route")
	}

	best, err := p.selectDeparture(ctx, baseRoute, candidates)
	if err != nil {
		return trips.SmartTrip{}, err
	}

	vehicle, vehicleReason, err := p.selectVehicle(ctx, st.Origin.Location, best.departure, best.departure.Add(time.Duration(baseRoute.DurationS)*time.Second))
	if err != nil {
		return trips.SmartTrip{}, err
	}

	driver, driverReason, err := p.selectDriver(ctx, st.Priority, best.departure, best.departure.Add(time.Duration(baseRoute.DurationS)*time.Second))
	if err != nil {
		return trips.SmartTrip{}, err
	}

	reasoning := []string{
		fmt.Sprintf("departure at %s minimizes traffic-adjusted duration (%.1f min vs free-flow %.1f min)",
			best.departure.Format(time.RFC3339), best.liveDuration.Minutes(), baseRoute.DurationS/60),
		vehicleReason,
		driverReason,
	}

	smart := trips.SmartTrip{
		ScheduledTripID: st.ID,
		OptimizedStart:  best.departure,
		OptimizedEnd:    best.departure.Add(best.liveDuration),
		VehicleID:       vehicle.VehicleID,
		DriverID:        driver.DriverID,
		RouteInfo: trips.RouteInfo{
			DistanceM:   baseRoute.DistanceM,
			DurationS:   best.liveDuration.Seconds(),
			Coordinates: baseRoute.Coordinates,
		},
		Reasoning: reasoning,
	}
	if bounds, ok := geo.ComputeBounds(baseRoute.Coordinates); ok {
		smart.RouteInfo.Bounds = &bounds
	}
	smart.ID = objectid.New()

	return p.store.PutSmartTrip(ctx, smart)
}

type departureScore struct {
	departure    time.Time
	liveDuration time.Duration
}

// selectDeparture probes traffic for every candidate and returns the one
// minimizing live duration, tie-breaking on the earliest departure (spec
// §4.10 step 2).
func (p *Planner) selectDeparture(ctx context.Context, baseRoute providers.Route, candidates []time.Time) (departureScore, error) {
	var best departureScore
	found := false
	for _, dep := range candidates {
		live, err := p.traffic.LiveDuration(ctx, baseRoute, dep)
		if err != nil {
			continue // a single probe failure doesn't abort candidate scoring
		}
		if !found || live < best.liveDuration || (live == best.liveDuration && dep.Before(best.departure)) {
			best = departureScore{departure: dep, liveDuration: live}
			found = true
		}
	}
	if !found {
		return departureScore{}, apperrors.New(apperrors.TypeServiceUnavailable, "traffic provider unavailable for every candidate departure")
	}
	return best, nil
}

// departureCandidates samples k = min(5, floor(window/1h)) evenly spaced
// departure times across [start, end) (spec §4.10 step 1).
func departureCandidates(start, end time.Time) []time.Time {
	window := end.Sub(start)
	k := int(window / time.Hour)
	if k > maxCandidates {
		k = maxCandidates
	}
	if k <= 0 {
		return nil
	}
	step := window / time.Duration(k)
	out := make([]time.Time, k)
	for i := 0; i < k; i++ {
		out[i] = start.Add(step * time.Duration(i))
	}
	return out
}

func routeWaypoints(st trips.ScheduledTrip) []geo.Point {
	pts := make([]geo.Point, 0, 2+len(st.Waypoints))
	pts = append(pts, st.Origin.Location)
	for _, w := range st.Waypoints {
		pts = append(pts, w.Location)
	}
	pts = append(pts, st.Destination.Location)
	return pts
}

// selectVehicle picks the available vehicle minimizing Haversine distance
// to origin, tie-breaking lexicographically on vehicle id (spec §4.10
// step 3).
func (p *Planner) selectVehicle(ctx context.Context, origin geo.Point, windowStart, windowEnd time.Time) (VehicleCandidate, string, error) {
	available, err := p.fleet.AvailableVehicles(ctx, windowStart, windowEnd)
	if err != nil {
		return VehicleCandidate{}, "", apperrors.Wrap(err, apperrors.TypeStorage, "listing available vehicles")
	}
	if len(available) == 0 {
		return VehicleCandidate{}, "", apperrors.New(apperrors.TypeBusinessRule, "no vehicle available for the selected window")
	}

	sort.Slice(available, func(i, j int) bool { return available[i].VehicleID < available[j].VehicleID })

	best := available[0]
	bestDist := geo.HaversineKM(origin, best.Position)
	for _, v := range available[1:] {
		d := geo.HaversineKM(origin, v.Position)
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	return best, fmt.Sprintf("vehicle %s is %.2f km from the origin, the closest available", best.VehicleID, bestDist), nil
}

// selectDriver picks a driver per spec §4.10 step 4: for elevated
// priority trips, rank by yearly completion rate and choose uniformly
// among the top 5; otherwise choose uniformly among every available
// driver.
func (p *Planner) selectDriver(ctx context.Context, priority trips.Priority, windowStart, windowEnd time.Time) (DriverCandidate, string, error) {
	available, err := p.fleet.AvailableDrivers(ctx, windowStart, windowEnd)
	if err != nil {
		return DriverCandidate{}, "", apperrors.Wrap(err, apperrors.TypeStorage, "listing available drivers")
	}
	if len(available) == 0 {
		return DriverCandidate{}, "", ErrNoDriverAvailable
	}

	if !priority.IsElevated() {
		chosen := available[p.rng.Intn(len(available))]
		return chosen, fmt.Sprintf("driver %s selected uniformly at random among %d available drivers", chosen.DriverID, len(available)), nil
	}

	year := windowStart.Year()
	type ranked struct {
		driver DriverCandidate
		rate   float64
	}
	rates := make([]ranked, 0, len(available))
	for _, d := range available {
		rate, err := p.analytics.CompletionRate(ctx, d.DriverID, year)
		if err != nil {
			rate = 0
		}
		rates = append(rates, ranked{driver: d, rate: rate})
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].rate > rates[j].rate })

	poolSize := topDriverPoolSize
	if poolSize > len(rates) {
		poolSize = len(rates)
	}
	pool := rates[:poolSize]
	chosen := pool[p.rng.Intn(len(pool))]
	return chosen.driver, fmt.Sprintf("driver %s selected at random among the top %d drivers by %d completion rate (%.0f%%)",
		chosen.driver.DriverID, poolSize, year, chosen.rate*100), nil
}
