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

package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samfms/scf/internal/cache"
	"github.com/samfms/scf/pkg/trips"
)

// analyticsCacheTTL caches a driver/year completion rate for 5 minutes,
// per spec.md §4.8's named "analytics cache sweep" scheduler task.
const analyticsCacheTTL = 5 * time.Minute

// TripHistoryDriverAnalytics implements DriverAnalytics by scanning the
// trip store's resolved trips for a driver/year, counting
// completed vs. cancelled. Grounded on the original service's
// completion-rate computation (SPEC_FULL.md §4.15); the corpus offers no
// dedicated analytics library, so this is plain arithmetic over query
// results cached through the shared internal/cache primitive.
type TripHistoryDriverAnalytics struct {
	store trips.Store
	cache cache.Store
}

// NewTripHistoryDriverAnalytics constructs an analytics source backed by
// store, caching results in cacheStore.
func NewTripHistoryDriverAnalytics(store trips.Store, cacheStore cache.Store) *TripHistoryDriverAnalytics {
	return &TripHistoryDriverAnalytics{store: store, cache: cacheStore}
}

func (a *TripHistoryDriverAnalytics) CompletionRate(ctx context.Context, driverID string, year int) (float64, error) {
	key := cacheKey(driverID, year)
	if raw, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		var rate float64
		if err := json.Unmarshal(raw, &rate); err == nil {
			return rate, nil
		}
	}

	// Completed/cancelled trips live in trip_history, not trips, per the
	// store's atomic terminal-state move; active trips never count
	// toward a completion rate.
	driverTrips, err := a.store.ListTripHistory(ctx, trips.TripFilter{DriverID: driverID})
	if err != nil {
		return 0, err
	}

	var completed, cancelled int
	for _, t := range driverTrips {
		if t.ScheduledStart.Year() != year {
			continue
		}
		switch t.Status {
		case trips.StatusCompleted:
			completed++
		case trips.StatusCancelled:
			cancelled++
		}
	}

	rate := 0.0
	if total := completed + cancelled; total > 0 {
		rate = float64(completed) / float64(total)
	}

	if raw, err := json.Marshal(rate); err == nil {
		_ = a.cache.Set(ctx, key, raw, analyticsCacheTTL)
	}
	return rate, nil
}

// Sweep evicts expired completion-rate cache entries, run by the
// "analytics cache sweep" scheduler task.
func (a *TripHistoryDriverAnalytics) Sweep(ctx context.Context) (int, error) {
	return a.cache.Sweep(ctx)
}

func cacheKey(driverID string, year int) string {
	return fmt.Sprintf("analytics:completion_rate:%s:%d", driverID, year)
}
