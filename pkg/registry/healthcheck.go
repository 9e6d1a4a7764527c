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

package registry

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
)

// DefaultCheckInterval is spec §4.6's default health-check cadence.
const DefaultCheckInterval = 10 * time.Second

// HealthChecker periodically probes every registered endpoint that
// declares a health_url, and marks health_url-less endpoints unhealthy
// once their heartbeat goes stale.
type HealthChecker struct {
	registry *Registry
	http     *http.Client
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthChecker constructs a checker polling registry at interval
// (0 uses DefaultCheckInterval).
func NewHealthChecker(registry *Registry, interval time.Duration, logger *zap.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &HealthChecker{
		registry: registry,
		http:     &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		logger:   logging.NopIfNil(logger),
	}
}

// Run blocks, probing every registered endpoint every interval, until
// ctx is cancelled.
func (c *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeAll(ctx)
		}
	}
}

func (c *HealthChecker) probeAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, ep := range c.registry.List() {
		if ep.HealthURL == "" {
			if now.Sub(ep.LastHeartbeat) >= staleAfter {
				c.registry.setStatus(ep.Name, StatusUnhealthy, false)
			}
			continue
		}
		c.probeOne(ctx, ep)
	}
}

func (c *HealthChecker) probeOne(ctx context.Context, ep ServiceEndpoint) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.HealthURL, nil)
	if err != nil {
		c.registry.setStatus(ep.Name, StatusUnhealthy, false)
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("registry: health probe failed", zap.String("service", ep.Name), zap.Error(err))
		c.registry.setStatus(ep.Name, StatusUnhealthy, false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.registry.setStatus(ep.Name, StatusHealthy, true)
		return
	}
	c.registry.setStatus(ep.Name, StatusUnhealthy, false)
}
