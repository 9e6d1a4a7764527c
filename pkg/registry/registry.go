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

// Package registry implements C6: an in-memory service registry with a
// periodic HTTP health checker and a small JSON client for invoking
// discovered services — a mutex-guarded map plus a periodic prober,
// the same heartbeat-based dependency-tracking shape this module's
// other background trackers use.
package registry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
)

// Status mirrors the data model's fixed status vocabulary.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
	StatusStarting  Status = "starting"
	StatusStopping  Status = "stopping"
)

// staleAfter is the heartbeat age beyond which a service with no
// health_url is considered unhealthy, per spec §3/§4.6.
const staleAfter = 30 * time.Second

// ServiceEndpoint is one registered service's location and health.
type ServiceEndpoint struct {
	Name          string
	Version       string
	Host          string
	Port          int
	Status        Status
	LastHeartbeat time.Time
	HealthURL     string
	Tags          []string
	Metadata      map[string]string
}

// IsHealthy implements the data model's invariant: healthy iff the
// recorded status is healthy AND the heartbeat is fresh.
func (s ServiceEndpoint) IsHealthy(now time.Time) bool {
	return s.Status == StatusHealthy && now.Sub(s.LastHeartbeat) < staleAfter
}

// BaseURL returns the endpoint's HTTP base URL.
func (s ServiceEndpoint) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// Registry is the in-memory name -> ServiceEndpoint map, guarded by a
// single mutex per spec §5.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]ServiceEndpoint
	logger    *zap.Logger
}

// New constructs an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		endpoints: make(map[string]ServiceEndpoint),
		logger:    logging.NopIfNil(logger),
	}
}

// Register adds or replaces a service endpoint, starting it in the
// "starting" status until the first health check or heartbeat lands.
func (r *Registry) Register(ep ServiceEndpoint) {
	if ep.Status == "" {
		ep.Status = StatusStarting
	}
	if ep.LastHeartbeat.IsZero() {
		ep.LastHeartbeat = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
}

// Deregister removes a service endpoint, e.g. on graceful shutdown.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, name)
}

// Heartbeat refreshes a service's last-seen timestamp, used when a
// service reports liveness without a health_url to poll.
func (r *Registry) Heartbeat(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return
	}
	ep.LastHeartbeat = time.Now().UTC()
	r.endpoints[name] = ep
}

// Discover returns the named service's endpoint only if it is currently
// healthy, per spec §4.6.
func (r *Registry) Discover(name string) (ServiceEndpoint, bool) {
	r.mu.RLock()
	ep, ok := r.endpoints[name]
	r.mu.RUnlock()
	if !ok || !ep.IsHealthy(time.Now().UTC()) {
		return ServiceEndpoint{}, false
	}
	return ep, true
}

// List returns a snapshot of every registered endpoint, healthy or not.
func (r *Registry) List() []ServiceEndpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out
}

// setStatus updates a registered endpoint's status and, when healthy,
// its heartbeat. Used by the health checker.
func (r *Registry) setStatus(name string, status Status, refreshHeartbeat bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return
	}
	ep.Status = status
	if refreshHeartbeat {
		ep.LastHeartbeat = time.Now().UTC()
	}
	r.endpoints[name] = ep
}

// ServiceDiscoveryError wraps network/deserialization failures from
// Client.Invoke, per spec §4.6.
func ServiceDiscoveryError(service string, cause error) *apperrors.AppError {
	return apperrors.Wrapf(cause, apperrors.TypeServiceUnavailable, "discovering or invoking %s", service)
}
