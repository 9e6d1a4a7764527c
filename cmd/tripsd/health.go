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

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/middleware"
	"github.com/samfms/scf/pkg/registry"
)

// newHealthServer builds this process's own health/readiness/metrics
// surface: /healthz reports the process is alive, /readyz reports
// whether every service this process depends on (as discovered
// through the registry) is healthy, and /metrics exposes the
// prometheus.Registerer the scheduler records into.
func newHealthServer(addr string, svcRegistry *registry.Registry, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Correlation)
	r.Use(middleware.Recover(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		for _, ep := range svcRegistry.List() {
			if ep.Status != registry.StatusHealthy {
				middleware.WriteSuccess(w, http.StatusServiceUnavailable, map[string]any{
					"status":        "degraded",
					"unhealthy_dep": ep.Name,
				})
				return
			}
		}
		middleware.WriteSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{Addr: addr, Handler: r}
}
