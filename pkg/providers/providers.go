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

// Package providers defines the Smart Trip Planner's (C10) and Traffic
// Reroute Engine's (C12) abstract dependencies on an external mapping
// vendor, deliberately left unconcretized (spec §1: map provider wire
// formats are out of scope). Consumers depend on these interfaces only;
// a concrete vendor adapter would live in its own package.
package providers

import (
	"context"
	"time"

	"github.com/samfms/scf/internal/geo"
)

// Route is one candidate path between two points, as returned by a
// RoutingProvider.
type Route struct {
	DistanceM   float64
	DurationS   float64 // free-flow duration
	Coordinates []geo.Point
}

// RoutingProvider computes base (free-flow) routes between points.
type RoutingProvider interface {
	// Route returns the provider's primary route through waypoints
	// (origin, then any intermediate stops, then destination).
	Route(ctx context.Context, waypoints []geo.Point) (Route, error)
	// Alternatives returns up to maxAlternatives additional candidate
	// routes the provider natively offers between origin and
	// destination (spec §4.12 step 3's "routing provider's native
	// alternatives").
	Alternatives(ctx context.Context, origin, destination geo.Point, maxAlternatives int) ([]Route, error)
}

// TrafficProvider reports live traffic conditions along a route.
type TrafficProvider interface {
	// LiveDuration returns the current traffic-adjusted travel time for
	// the given route, at departureTime.
	LiveDuration(ctx context.Context, route Route, departureTime time.Time) (time.Duration, error)
}

// SpeedLimitProvider reports the posted speed limit at a location.
// Callers default to 50 km/h when a provider cannot answer (spec
// §4.11).
type SpeedLimitProvider interface {
	SpeedLimitKMH(ctx context.Context, at geo.Point) (float64, error)
}

// DefaultSpeedLimitKMH is the fallback speed limit used when no provider
// is configured or the provider can't answer for a location (spec
// §4.11).
const DefaultSpeedLimitKMH = 50.0
