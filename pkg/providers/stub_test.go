package providers

import (
	"context"
	"testing"
	"time"

	"github.com/samfms/scf/internal/geo"
)

func TestStubRoutingSumsLegDistances(t *testing.T) {
	waypoints := []geo.Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 1, Lng: 1},
	}
	r := &StubRouting{AverageSpeedKMH: 60}

	route, err := r.Route(context.Background(), waypoints)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.DistanceM <= 0 {
		t.Errorf("DistanceM = %v, want > 0", route.DistanceM)
	}
	wantDurationS := route.DistanceM / 1000 / 60 * 3600
	if route.DurationS != wantDurationS {
		t.Errorf("DurationS = %v, want %v", route.DurationS, wantDurationS)
	}
}

func TestStubRoutingDefaultsSpeedWhenUnset(t *testing.T) {
	r := &StubRouting{}
	if got := r.speed(); got != 60 {
		t.Errorf("default speed = %v, want 60", got)
	}
}

func TestStubRoutingAlternativesRespectsMax(t *testing.T) {
	r := &StubRouting{Alts: []Route{{DistanceM: 1}, {DistanceM: 2}, {DistanceM: 3}}}

	got, err := r.Alternatives(context.Background(), geo.Point{}, geo.Point{}, 2)
	if err != nil {
		t.Fatalf("Alternatives: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestStubTrafficFallsBackToDefaultRatio(t *testing.T) {
	tr := &StubTraffic{Default: 1.5}
	route := Route{DurationS: 1000}

	got, err := tr.LiveDuration(context.Background(), route, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LiveDuration: %v", err)
	}
	want := time.Duration(1000 * 1.5 * float64(time.Second))
	if got != want {
		t.Errorf("LiveDuration = %v, want %v", got, want)
	}
}

func TestStubTrafficUsesHourSpecificRatio(t *testing.T) {
	tr := &StubTraffic{RatioByHour: map[int]float64{17: 2.0}, Default: 1.0}
	route := Route{DurationS: 1000}

	got, err := tr.LiveDuration(context.Background(), route, time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("LiveDuration: %v", err)
	}
	if got != 2000*time.Second {
		t.Errorf("LiveDuration = %v, want 2000s", got)
	}
}

func TestStubSpeedLimitDefaultsWhenUnset(t *testing.T) {
	sl := &StubSpeedLimit{}
	got, err := sl.SpeedLimitKMH(context.Background(), geo.Point{})
	if err != nil {
		t.Fatalf("SpeedLimitKMH: %v", err)
	}
	if got != DefaultSpeedLimitKMH {
		t.Errorf("SpeedLimitKMH = %v, want %v", got, DefaultSpeedLimitKMH)
	}
}
