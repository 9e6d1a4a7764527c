package registry

import (
	"testing"
	"time"
)

func TestDiscoverReturnsFalseForUnknownService(t *testing.T) {
	r := New(nil)
	if _, ok := r.Discover("ghost-service"); ok {
		t.Error("Discover() should fail for an unregistered service")
	}
}

func TestDiscoverReturnsFalseWhenUnhealthy(t *testing.T) {
	r := New(nil)
	r.Register(ServiceEndpoint{Name: "trips", Host: "trips.local", Port: 8080, Status: StatusUnhealthy, LastHeartbeat: time.Now().UTC()})
	if _, ok := r.Discover("trips"); ok {
		t.Error("Discover() should fail for a service marked unhealthy")
	}
}

func TestDiscoverReturnsTrueWhenHealthyAndFresh(t *testing.T) {
	r := New(nil)
	r.Register(ServiceEndpoint{Name: "trips", Host: "trips.local", Port: 8080, Status: StatusHealthy, LastHeartbeat: time.Now().UTC()})
	ep, ok := r.Discover("trips")
	if !ok {
		t.Fatal("Discover() should succeed for a healthy, fresh endpoint")
	}
	if ep.BaseURL() != "http://trips.local:8080" {
		t.Errorf("BaseURL() = %q, want http://trips.local:8080", ep.BaseURL())
	}
}

func TestIsHealthyFailsOnStaleHeartbeatEvenIfStatusHealthy(t *testing.T) {
	ep := ServiceEndpoint{Status: StatusHealthy, LastHeartbeat: time.Now().UTC().Add(-time.Minute)}
	if ep.IsHealthy(time.Now().UTC()) {
		t.Error("a stale heartbeat should make the endpoint unhealthy regardless of recorded status")
	}
}

func TestHeartbeatRefreshesTimestamp(t *testing.T) {
	r := New(nil)
	old := time.Now().UTC().Add(-time.Minute)
	r.Register(ServiceEndpoint{Name: "trips", Status: StatusHealthy, LastHeartbeat: old})

	r.Heartbeat("trips")

	eps := r.List()
	if len(eps) != 1 {
		t.Fatalf("List() returned %d endpoints, want 1", len(eps))
	}
	if !eps[0].LastHeartbeat.After(old) {
		t.Error("Heartbeat() should advance LastHeartbeat")
	}
}

func TestDeregisterRemovesEndpoint(t *testing.T) {
	r := New(nil)
	r.Register(ServiceEndpoint{Name: "trips", Status: StatusHealthy, LastHeartbeat: time.Now().UTC()})
	r.Deregister("trips")
	if _, ok := r.Discover("trips"); ok {
		t.Error("Discover() should fail after Deregister")
	}
}
