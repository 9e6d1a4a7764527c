package traffic

import (
	"context"
	"testing"
	"time"

	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/trips"
)

type emptyRoleDirectory struct{}

func (emptyRoleDirectory) UserIDsForRole(ctx context.Context, role authgate.Role) ([]string, error) {
	return nil, nil
}

func TestSeverityClassification(t *testing.T) {
	cases := []struct {
		ratio float64
		want  trips.TrafficSeverity
	}{
		{1.0, trips.SeverityLight},
		{1.29, trips.SeverityLight},
		{1.3, trips.SeverityModerate},
		{1.49, trips.SeverityModerate},
		{1.5, trips.SeverityHeavy},
		{1.99, trips.SeverityHeavy},
		{2.0, trips.SeveritySevere},
		{3.0, trips.SeveritySevere},
	}
	for _, c := range cases {
		if got := severity(c.ratio); got != c.want {
			t.Errorf("severity(%v) = %v, want %v", c.ratio, got, c.want)
		}
	}
}

func TestNeedsRerouteOnlyForHeavyOrSevere(t *testing.T) {
	if needsReroute(trips.SeverityLight) || needsReroute(trips.SeverityModerate) {
		t.Error("light/moderate severity should not trigger a reroute evaluation")
	}
	if !needsReroute(trips.SeverityHeavy) || !needsReroute(trips.SeveritySevere) {
		t.Error("heavy/severe severity should trigger a reroute evaluation")
	}
}

func TestMinimumSavingsRelaxesForSevereAndHeavy(t *testing.T) {
	configured := 600.0
	if got := minimumSavingsFor(trips.SeveritySevere, configured); got != 180 {
		t.Errorf("severe minimum savings = %v, want 180", got)
	}
	if got := minimumSavingsFor(trips.SeverityHeavy, configured); got != 300 {
		t.Errorf("heavy minimum savings = %v, want 300", got)
	}
	if got := minimumSavingsFor(trips.SeverityModerate, configured); got != configured {
		t.Errorf("moderate minimum savings = %v, want unchanged %v", got, configured)
	}
}

func TestConfidenceForCapsAtPointNineFive(t *testing.T) {
	if got := confidenceFor(0); got != 0.60 {
		t.Errorf("confidenceFor(0) = %v, want 0.60", got)
	}
	if got := confidenceFor(10000); got != 0.95 {
		t.Errorf("confidenceFor(10000) = %v, want 0.95 (capped)", got)
	}
}

func mustCreateInProgressTripAt(t *testing.T, store trips.Store, vehicleID, driverID string, destination geo.Point) trips.Trip {
	t.Helper()
	ctx := context.Background()
	created, err := store.CreateTrip(ctx, trips.Trip{
		VehicleID:      vehicleID,
		DriverID:       driverID,
		Destination:    trips.Place{Name: "depot", Location: destination},
		Status:         trips.StatusScheduled,
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	updated, err := store.UpdateTripStatus(ctx, created.ID, trips.StatusInProgress, time.Now())
	if err != nil {
		t.Fatalf("UpdateTripStatus: %v", err)
	}
	return updated
}

func TestCycleEmitsRecommendationForSevereTraffic(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()

	origin := geo.Point{Lat: 0, Lng: 0}
	destination := geo.Point{Lat: 0, Lng: 0.5}
	mustCreateInProgressTripAt(t, store, "V1", "D1", destination)

	if err := store.UpsertVehicleLocation(ctx, trips.VehicleLocation{
		VehicleID: "V1",
		Location:  origin,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("UpsertVehicleLocation: %v", err)
	}

	routing := &providers.StubRouting{
		AverageSpeedKMH: 60,
		Alts: []providers.Route{
			{
				DistanceM:   38850, // ~0.7x the direct distance
				DurationS:   2331,
				Coordinates: []geo.Point{origin, {Lat: 0.1, Lng: 0.25}, destination},
			},
		},
	}
	traffic := &providers.StubTraffic{Default: 2.0} // severe on every probe

	fanout := notify.New(store, emptyRoleDirectory{}, nil)
	defer fanout.Stop()

	engine := New(store, routing, traffic, fanout, nil)
	if err := engine.Cycle(ctx); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	unread, err := store.ListUnreadNotifications(ctx, "D1")
	if err != nil {
		t.Fatalf("ListUnreadNotifications: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("unread notifications for the trip's driver = %d, want 1", len(unread))
	}
	recommendationID, _ := unread[0].Data["recommendation_id"].(string)
	if recommendationID == "" {
		t.Fatal("notification is missing a recommendation_id")
	}

	rec, err := store.GetRouteRecommendation(ctx, recommendationID)
	if err != nil {
		t.Fatalf("GetRouteRecommendation: %v", err)
	}
	if rec.TrafficSeverity != trips.SeveritySevere {
		t.Errorf("TrafficSeverity = %v, want severe", rec.TrafficSeverity)
	}
	if rec.TimeSavingsS <= 0 {
		t.Errorf("TimeSavingsS = %v, want > 0", rec.TimeSavingsS)
	}

	updatedTrip, err := engine.Accept(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if updatedTrip.RouteInfo == nil || updatedTrip.RouteInfo.DistanceM != rec.RecommendedRoute.DistanceM {
		t.Error("Accept did not replace the trip's route_info with the recommended route")
	}
	if _, err := store.GetRouteRecommendation(ctx, rec.ID); err == nil {
		t.Error("Accept should delete the recommendation once applied")
	}
}

func TestRejectDeletesRecommendationWithoutTouchingRoute(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	trip := mustCreateInProgressTripAt(t, store, "V1", "D1", geo.Point{Lat: 0, Lng: 0.5})

	rec, err := store.PutRouteRecommendation(ctx, trips.RouteRecommendation{
		TripID:          trip.ID,
		VehicleID:       trip.VehicleID,
		TrafficSeverity: trips.SeverityHeavy,
	})
	if err != nil {
		t.Fatalf("PutRouteRecommendation: %v", err)
	}

	engine := New(store, &providers.StubRouting{}, &providers.StubTraffic{}, nil, nil)
	if err := engine.Reject(ctx, rec.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := store.GetRouteRecommendation(ctx, rec.ID); err == nil {
		t.Error("Reject should delete the recommendation")
	}

	unchanged, err := store.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatalf("GetTrip: %v", err)
	}
	if unchanged.RouteInfo != nil {
		t.Error("Reject must not touch the trip's route_info")
	}
}
