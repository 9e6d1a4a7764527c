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
	"testing"
	"time"

	"github.com/samfms/scf/internal/geo"
	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/trips"
)

func TestStaticFleetDirectoryExcludesAssignedVehicles(t *testing.T) {
	store := trips.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"v-1", "v-2"} {
		if err := store.UpsertVehicleLocation(ctx, trips.VehicleLocation{
			VehicleID: id,
			Location:  geo.Point{Lat: 1, Lng: 1},
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("UpsertVehicleLocation(%s) error = %v", id, err)
		}
	}
	if _, err := store.CreateAssignment(ctx, trips.VehicleAssignment{
		ID: "a-1", TripID: "t-1", VehicleID: "v-1", DriverID: "d-1", Start: now,
	}); err != nil {
		t.Fatalf("CreateAssignment() error = %v", err)
	}

	dir := &staticFleetDirectory{store: store, vehicleIDs: []string{"v-1", "v-2", "v-3"}}
	candidates, err := dir.AvailableVehicles(ctx, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("AvailableVehicles() error = %v", err)
	}
	if len(candidates) != 1 || candidates[0].VehicleID != "v-2" {
		t.Fatalf("candidates = %+v, want only v-2 (v-1 is assigned, v-3 has no location)", candidates)
	}
}

func TestStaticFleetDirectoryAvailableDrivers(t *testing.T) {
	dir := &staticFleetDirectory{driverIDs: []string{"d-1", "d-2"}}
	candidates, err := dir.AvailableDrivers(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("AvailableDrivers() error = %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(candidates))
	}
}

func TestStaticRoleDirectoryResolvesConfiguredUserIDs(t *testing.T) {
	dir := &staticRoleDirectory{roleUserIDs: map[string][]string{
		string(authgate.RoleManager): {"u-1", "u-2"},
	}}

	ids, err := dir.UserIDsForRole(context.Background(), authgate.RoleManager)
	if err != nil {
		t.Fatalf("UserIDsForRole() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "u-1" {
		t.Fatalf("ids = %v, want [u-1 u-2]", ids)
	}

	if ids, err := dir.UserIDsForRole(context.Background(), authgate.RoleDriver); err != nil || len(ids) != 0 {
		t.Fatalf("UserIDsForRole(unconfigured role) = %v, %v, want empty, nil", ids, err)
	}
}
