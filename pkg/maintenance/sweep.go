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

// Package maintenance wires the "maintenance-license-sweep" scheduler
// task (spec §4.8/§4.14): a daily tick that asks an optional Source for
// due maintenance/license items and, for each one, writes a
// maintenance_due notification through C13 and publishes the matching
// envelope from pkg/eventbus/catalog.go through C3. No maintenance or
// license record storage lives in this module — Source is nil unless a
// caller wires one in, making the sweep a no-op that still proves out
// the C3/C13 wiring other Sblocks depend on: the same thin-adapter
// shape this module uses anywhere an upstream record owner hasn't
// been built yet.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
	"github.com/samfms/scf/pkg/eventbus"
	"github.com/samfms/scf/pkg/notify"
)

// ItemKind distinguishes the two envelope shapes a DueItem can produce.
type ItemKind string

const (
	KindMaintenanceScheduled ItemKind = "maintenance_scheduled"
	KindLicenseExpiring      ItemKind = "license_expiring"
)

// DueItem is one maintenance or license-expiry item a Source reports as
// due for notification on a sweep tick.
type DueItem struct {
	Kind            ItemKind
	RecipientUserID string
	VehicleID       string
	DriverID        string
	MaintenanceType string
	LicenseType     string
	Message         string
}

// Source reports items due for notification. No concrete implementation
// ships in this module; a future Sblock that owns maintenance/license
// records injects its own.
type Source interface {
	DueItems(ctx context.Context) ([]DueItem, error)
}

// Sweeper runs the daily sweep.
type Sweeper struct {
	source  Source // nil is valid: Sweep becomes a no-op tick
	fanout  *notify.Fanout
	bus     *eventbus.Bus
	eventCh *broker.Channel
	logger  *zap.Logger
}

// Option configures a Sweeper at construction time.
type Option func(*Sweeper)

// WithEventPublication wires the sweeper to publish catalog events on
// bus/ch; omitting this option disables event publication.
func WithEventPublication(bus *eventbus.Bus, ch *broker.Channel) Option {
	return func(s *Sweeper) { s.bus = bus; s.eventCh = ch }
}

// New constructs a Sweeper. source may be nil.
func New(source Source, fanout *notify.Fanout, logger *zap.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		source: source,
		fanout: fanout,
		logger: logging.NopIfNil(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep is the "maintenance-license-sweep" scheduler task body. It is
// deliberately inert when no Source is configured, which is the default
// in this module.
func (s *Sweeper) Sweep(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	items, err := s.source.DueItems(ctx)
	if err != nil {
		return fmt.Errorf("listing due maintenance/license items: %w", err)
	}

	for _, item := range items {
		s.notifyItem(ctx, item)
		s.publishItem(ctx, item)
	}
	return nil
}

func (s *Sweeper) notifyItem(ctx context.Context, item DueItem) {
	if s.fanout == nil {
		return
	}
	req := notify.Request{
		Type:    "maintenance_due",
		Title:   titleFor(item),
		Message: item.Message,
		Data: map[string]any{
			"kind":       item.Kind,
			"vehicle_id": item.VehicleID,
			"driver_id":  item.DriverID,
		},
	}
	if item.RecipientUserID != "" {
		req.RecipientUserIDs = []string{item.RecipientUserID}
	}
	if _, err := s.fanout.Notify(ctx, req); err != nil {
		s.logger.Warn("maintenance: failed to notify due item", zap.String("vehicle_id", item.VehicleID), zap.Error(err))
	}
}

func titleFor(item DueItem) string {
	if item.Kind == KindLicenseExpiring {
		return "License expiring soon"
	}
	return "Maintenance due"
}

func (s *Sweeper) publishItem(ctx context.Context, item DueItem) {
	if s.bus == nil || s.eventCh == nil {
		return
	}

	var (
		routingKey string
		payload    any
	)
	switch item.Kind {
	case KindLicenseExpiring:
		routingKey = eventbus.LicenseExpiringRoutingKey
		payload = eventbus.LicenseExpiring{
			DriverID:    item.DriverID,
			VehicleID:   item.VehicleID,
			LicenseType: item.LicenseType,
		}
	default:
		routingKey = eventbus.MaintenanceScheduledRoutingKey
		payload = eventbus.MaintenanceScheduled{
			VehicleID:       item.VehicleID,
			MaintenanceType: item.MaintenanceType,
			Description:     item.Message,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("maintenance: failed to marshal event", zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, s.eventCh, eventbus.MaintenanceEventsExchange, routingKey, body); err != nil {
		s.logger.Warn("maintenance: failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}
