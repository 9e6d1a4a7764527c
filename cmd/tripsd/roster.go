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

	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/planner"
	"github.com/samfms/scf/pkg/trips"
)

// staticFleetDirectory answers planner.FleetDirectory from a configured
// roster of vehicle/driver ids, filtering vehicles with a currently open
// assignment out of availability. It has no notion of shift rosters or
// future-window overlap — a real fleet-roster Sblock owns that — so it
// is a placeholder sufficient to exercise C10 end-to-end, not a
// scheduling system in its own right.
type staticFleetDirectory struct {
	store      trips.Store
	vehicleIDs []string
	driverIDs  []string
}

func (f *staticFleetDirectory) AvailableVehicles(ctx context.Context, _, _ time.Time) ([]planner.VehicleCandidate, error) {
	var out []planner.VehicleCandidate
	for _, id := range f.vehicleIDs {
		if _, active, err := f.store.ActiveAssignmentForVehicle(ctx, id); err != nil {
			return nil, err
		} else if active {
			continue
		}
		loc, ok, err := f.store.GetVehicleLocation(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, planner.VehicleCandidate{VehicleID: id, Position: loc.Location})
	}
	return out, nil
}

func (f *staticFleetDirectory) AvailableDrivers(ctx context.Context, _, _ time.Time) ([]planner.DriverCandidate, error) {
	out := make([]planner.DriverCandidate, 0, len(f.driverIDs))
	for _, id := range f.driverIDs {
		out = append(out, planner.DriverCandidate{DriverID: id})
	}
	return out, nil
}

// staticRoleDirectory answers notify.RoleDirectory from the configured
// role -> user id map; identity/roster CRUD is owned by a separate
// service this module does not host.
type staticRoleDirectory struct {
	roleUserIDs map[string][]string
}

func (d *staticRoleDirectory) UserIDsForRole(ctx context.Context, role authgate.Role) ([]string, error) {
	return d.roleUserIDs[string(role)], nil
}
