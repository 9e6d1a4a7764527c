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

package eventbus

import "time"

// MaintenanceEventsExchange is the durable topic exchange a maintenance
// Sblock would declare and publish MaintenanceScheduled/LicenseExpiring
// events on. No maintenance or license record CRUD lives in this
// module; these envelope types exist so any Sblock that does own that
// data can publish/consume through the same C3 machinery everything
// else in the fabric uses.
const MaintenanceEventsExchange = "maintenance_events"

const (
	MaintenanceScheduledRoutingKey = "maintenance.scheduled"
	MaintenanceCompletedRoutingKey = "maintenance.completed"
	LicenseExpiringRoutingKey      = "license.expiring"
)

// MaintenanceScheduled announces that a vehicle has upcoming scheduled
// maintenance.
type MaintenanceScheduled struct {
	VehicleID       string    `json:"vehicle_id"`
	MaintenanceType string    `json:"maintenance_type"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Description     string    `json:"description,omitempty"`
}

// LicenseExpiring announces that a driver's license (or a vehicle's
// registration/inspection certificate) is approaching its expiry date.
type LicenseExpiring struct {
	DriverID    string    `json:"driver_id,omitempty"`
	VehicleID   string    `json:"vehicle_id,omitempty"`
	LicenseType string    `json:"license_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
