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

package providers

import (
	"context"
	"time"

	"github.com/samfms/scf/internal/geo"
)

// StubRouting is a deterministic RoutingProvider for tests: it returns a
// direct-line route through the given waypoints at a fixed average
// speed, with no native alternatives unless Alts is populated.
type StubRouting struct {
	AverageSpeedKMH float64 // defaults to 60 if zero
	Alts            []Route
}

func (s *StubRouting) speed() float64 {
	if s.AverageSpeedKMH <= 0 {
		return 60
	}
	return s.AverageSpeedKMH
}

func (s *StubRouting) Route(ctx context.Context, waypoints []geo.Point) (Route, error) {
	if len(waypoints) < 2 {
		return Route{}, nil
	}
	var distanceM float64
	for i := 1; i < len(waypoints); i++ {
		distanceM += geo.HaversineMeters(waypoints[i-1], waypoints[i])
	}
	durationS := distanceM / 1000 / s.speed() * 3600
	return Route{DistanceM: distanceM, DurationS: durationS, Coordinates: waypoints}, nil
}

func (s *StubRouting) Alternatives(ctx context.Context, origin, destination geo.Point, maxAlternatives int) ([]Route, error) {
	if maxAlternatives <= 0 || len(s.Alts) == 0 {
		return nil, nil
	}
	if maxAlternatives < len(s.Alts) {
		return s.Alts[:maxAlternatives], nil
	}
	return s.Alts, nil
}

// StubTraffic is a deterministic TrafficProvider for tests: it looks up
// a traffic ratio by the departure hour (local to departureTime), falling
// back to Default when no hour entry matches.
type StubTraffic struct {
	RatioByHour map[int]float64
	Default     float64 // defaults to 1.0 (free flow) if zero
}

func (s *StubTraffic) LiveDuration(ctx context.Context, route Route, departureTime time.Time) (time.Duration, error) {
	ratio := s.Default
	if ratio <= 0 {
		ratio = 1.0
	}
	if s.RatioByHour != nil {
		if r, ok := s.RatioByHour[departureTime.Hour()]; ok {
			ratio = r
		}
	}
	return time.Duration(route.DurationS * ratio * float64(time.Second)), nil
}

// StubSpeedLimit is a constant SpeedLimitProvider for tests.
type StubSpeedLimit struct {
	LimitKMH float64
}

func (s *StubSpeedLimit) SpeedLimitKMH(ctx context.Context, at geo.Point) (float64, error) {
	if s.LimitKMH <= 0 {
		return DefaultSpeedLimitKMH, nil
	}
	return s.LimitKMH, nil
}
