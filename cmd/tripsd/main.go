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

// Command tripsd is the trip-domain SCF process: it hosts C9 (trip
// store), C10 (smart trip planner), C11 (driver-ping monitor), C12
// (traffic reroute engine), and C13 (notification fanout) behind a C2
// RPC server, wires C3/C6/C8 as the machinery that carries requests
// to those handlers, and exposes a health/readiness/metrics HTTP
// surface for the orchestrator. C1/C5/C7 (queue ingress, token
// verification, and principal tagging) belong to the gateway process
// this binary sits behind; by the time a RequestEnvelope reaches this
// queue its UserContext is already resolved, so this process has
// nothing left to verify. main is a thin entrypoint wiring together
// long-lived internal/pkg components through their own constructors;
// everything it composes is already built and tested as a package in
// its own right.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/cache"
	"github.com/samfms/scf/internal/config"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
	"github.com/samfms/scf/pkg/eventbus"
	"github.com/samfms/scf/pkg/maintenance"
	"github.com/samfms/scf/pkg/notify"
	"github.com/samfms/scf/pkg/pinger"
	"github.com/samfms/scf/pkg/planner"
	"github.com/samfms/scf/pkg/providers"
	"github.com/samfms/scf/pkg/registry"
	"github.com/samfms/scf/pkg/rpc"
	"github.com/samfms/scf/pkg/scheduler"
	"github.com/samfms/scf/pkg/traffic"
	"github.com/samfms/scf/pkg/trips"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file (env vars always win)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, level := logging.Must(cfg.Environment == "production", logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, *configPath, logger, func(reloaded config.Config) {
		level.SetLevel(logging.ParseLevel(reloaded.LogLevel))
	}); err != nil {
		logger.Warn("tripsd: config file watch disabled", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tripsd: exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	dedupCache, analyticsCache, err := openCaches(cfg)
	if err != nil {
		return err
	}

	brokerClient := broker.New(broker.Config{
		URL:            cfg.Broker.URL,
		Heartbeat:      cfg.Broker.Heartbeat,
		MaxRetries:     cfg.Broker.MaxRetries,
		PublishTimeout: cfg.Broker.PublishTTL,
	}, logger)
	if err := brokerClient.Connect(ctx); err != nil {
		return err
	}
	defer brokerClient.Close()

	bus := eventbus.New(brokerClient, logger)
	registerer := prometheus.NewRegistry()

	dedup := rpc.NewDedup(dedupCache)
	router := rpc.NewRouter(cfg.Request.TimeoutDefault)
	rpcServer := rpc.NewServer(cfg.ServiceName, brokerClient, router, dedup, logger)

	topoCh, err := brokerClient.Channel()
	if err != nil {
		return err
	}
	if err := declareTopology(topoCh, rpcServer, bus, cfg); err != nil {
		return err
	}

	eventCh, err := brokerClient.Channel()
	if err != nil {
		return err
	}

	fanout := notify.New(store, &staticRoleDirectory{roleUserIDs: cfg.Roster.RoleUserIDs}, logger)
	defer fanout.Stop()

	pingMonitor := pinger.New(store, speedLimitProvider(cfg), fanout, logger,
		pinger.WithInterval(cfg.Ping.Interval),
		pinger.WithGrace(cfg.Ping.Grace),
	)

	driverAnalytics := planner.NewTripHistoryDriverAnalytics(store, analyticsCache)
	tripPlanner := planner.New(store,
		&staticFleetDirectory{store: store, vehicleIDs: cfg.Roster.VehicleIDs, driverIDs: cfg.Roster.DriverIDs},
		driverAnalytics,
		routingProvider(cfg),
		trafficProvider(cfg),
		nil,
	)

	rerouteEngine := traffic.New(store, routingProvider(cfg), trafficProvider(cfg), fanout, logger,
		traffic.WithMinimumTimeSavings(cfg.Traffic.MinimumTimeSavings.Seconds()),
		traffic.WithEventPublication(bus, eventCh),
	)

	maintenanceSweeper := maintenance.New(nil, fanout, logger,
		maintenance.WithEventPublication(bus, eventCh),
	)

	svcRegistry := registry.New(logger)
	healthChecker := registry.NewHealthChecker(svcRegistry, registry.DefaultCheckInterval, logger)

	registerHandlers(router, store, tripPlanner, pingMonitor, rerouteEngine)

	sched := scheduler.New(logger, registerer)
	registerScheduledTasks(sched, store, dedup, driverAnalytics, pingMonitor, rerouteEngine, maintenanceSweeper, cfg)

	httpServer := newHealthServer(cfg.HTTP.ListenAddr, svcRegistry, registerer, logger)

	rpcCh, err := brokerClient.Channel()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- rpcServer.Serve(ctx, rpcCh, 16) }()
	go sched.Run(ctx)
	go healthChecker.Run(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("tripsd: health server failed", zap.Error(err))
		}
	}()

	logger.Info("tripsd: ready", zap.String("service", cfg.ServiceName))

	select {
	case <-ctx.Done():
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logger.Error("tripsd: rpc server stopped unexpectedly", zap.Error(err))
		}
	}

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config) (trips.Store, error) {
	if cfg.Database.Backend == "postgres" {
		return trips.OpenPostgres(ctx, cfg.Database.URL)
	}
	return trips.NewMemory(), nil
}

func openCaches(cfg config.Config) (dedup, analytics cache.Store, err error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemory(), cache.NewMemory(), nil
	}

	client := newRedisClient(cfg)
	return cache.NewRedis(client, "rpc"), cache.NewRedis(client, "analytics"), nil
}

func routingProvider(cfg config.Config) providers.RoutingProvider {
	return providers.NewHTTPRoutingProvider(cfg.Providers.RoutingBaseURL, cfg.Providers.APIKey)
}

func trafficProvider(cfg config.Config) providers.TrafficProvider {
	return providers.NewHTTPTrafficProvider(cfg.Providers.TrafficBaseURL, cfg.Providers.APIKey)
}

func speedLimitProvider(cfg config.Config) providers.SpeedLimitProvider {
	return providers.NewHTTPSpeedLimitProvider(cfg.Providers.SpeedLimitBaseURL, cfg.Providers.APIKey)
}
