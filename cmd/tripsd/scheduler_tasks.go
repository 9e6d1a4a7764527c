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
	"context"
	"time"

	"github.com/samfms/scf/internal/config"
	"github.com/samfms/scf/pkg/maintenance"
	"github.com/samfms/scf/pkg/pinger"
	"github.com/samfms/scf/pkg/planner"
	"github.com/samfms/scf/pkg/rpc"
	"github.com/samfms/scf/pkg/scheduler"
	"github.com/samfms/scf/pkg/traffic"
	"github.com/samfms/scf/pkg/trips"
)

// locationHistoryRetention bounds how long raw GPS history is kept
// before the purge task reclaims it.
const locationHistoryRetention = 90 * 24 * time.Hour

// registerScheduledTasks wires every C8 periodic task this process
// owns: the C11 ping watchdog, the C12 traffic-reroute cycle, the C13
// maintenance sweep, and the housekeeping sweeps each component's
// backing cache or store already exposes.
func registerScheduledTasks(
	sched *scheduler.Scheduler,
	store trips.Store,
	dedup *rpc.Dedup,
	analytics *planner.TripHistoryDriverAnalytics,
	pingMonitor *pinger.Monitor,
	rerouteEngine *traffic.Engine,
	maintenanceSweeper *maintenance.Sweeper,
	cfg config.Config,
) {
	sched.Register(scheduler.Task{
		Name:     "ping-watchdog",
		Interval: cfg.Ping.Interval,
		Handler:  pingMonitor.WatchdogTick,
	})

	sched.Register(scheduler.Task{
		Name:     "traffic-reroute-cycle",
		Interval: cfg.Traffic.CheckInterval,
		Handler:  rerouteEngine.Cycle,
	})

	sched.Register(scheduler.Task{
		Name:     "maintenance-license-sweep",
		Interval: 24 * time.Hour,
		Handler:  maintenanceSweeper.Sweep,
	})

	sched.Register(scheduler.Task{
		Name:     "rpc-dedup-sweep",
		Interval: 10 * time.Minute,
		Handler:  func(ctx context.Context) error { _, err := dedup.Sweep(ctx); return err },
	})

	sched.Register(scheduler.Task{
		Name:     "analytics-cache-sweep",
		Interval: 10 * time.Minute,
		Handler:  func(ctx context.Context) error { _, err := analytics.Sweep(ctx); return err },
	})

	sched.Register(scheduler.Task{
		Name:     "location-history-purge",
		Interval: 24 * time.Hour,
		Handler: func(ctx context.Context) error {
			_, err := store.PurgeLocationHistoryBefore(ctx, time.Now().UTC().Add(-locationHistoryRetention))
			return err
		},
	})
}
