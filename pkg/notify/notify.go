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

// Package notify implements C13, the Notification Fanout: it expands a
// {recipient_user_ids|recipient_roles, type, title, message, data}
// request into one concrete Notification row per recipient through the
// trip store, then queues a push-delivery hint on an internal channel
// drained by a single-writer sink goroutine: a bounded work queue with
// at-least-once delivery semantics, the same background-worker-over-a-
// channel shape this module's scheduler task goroutines and RPC reply
// consumer both use.
package notify

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/internal/objectid"
	"github.com/samfms/scf/pkg/authgate"
	"github.com/samfms/scf/pkg/trips"
)

// pendingPushCapacity bounds the internal push-delivery queue; a full
// queue drops the push-delivery hint rather than blocking the producing
// fanout call (see enqueuePush). The Notification row is already
// durably persisted before the hint is enqueued, so a drop only delays
// the async-delivery path and never loses the notification itself.
const pendingPushCapacity = 256

// RoleDirectory resolves a role to the concrete user ids currently
// holding it. Kept abstract the same way planner.FleetDirectory is: a
// user/role directory is its own subsystem with a lifecycle this module
// doesn't own.
type RoleDirectory interface {
	UserIDsForRole(ctx context.Context, role authgate.Role) ([]string, error)
}

// Request is the fanout input: a notification addressed to some mix of
// concrete user ids and roles (spec §3's Notification, §4.13).
type Request struct {
	RecipientUserIDs []string
	RecipientRoles   []authgate.Role
	Type             string
	Title            string
	Message          string
	Data             map[string]any
}

// Fanout expands Requests into one trips.Notification per concrete
// recipient, persists each through the trip store, and enqueues a
// push-delivery hint for every notification successfully written.
type Fanout struct {
	store     trips.Store
	directory RoleDirectory
	logger    *zap.Logger

	pendingPush chan trips.Notification
	sinkDone    chan struct{}
}

// New constructs a Fanout and starts its single-writer push sink. Stop
// must be called to drain and shut the sink down cleanly.
func New(store trips.Store, directory RoleDirectory, logger *zap.Logger) *Fanout {
	f := &Fanout{
		store:       store,
		directory:   directory,
		logger:      logging.NopIfNil(logger),
		pendingPush: make(chan trips.Notification, pendingPushCapacity),
		sinkDone:    make(chan struct{}),
	}
	go f.runPushSink()
	return f
}

// Notify expands req's recipients into concrete Notification rows and
// writes each one. It returns the written notifications; a partial
// failure (one recipient's write erroring) does not roll back the
// others — each recipient's delivery is independent, matching the
// at-least-once contract spec §4.13 requires rather than an all-or-
// nothing one.
func (f *Fanout) Notify(ctx context.Context, req Request) ([]trips.Notification, error) {
	recipients, err := f.resolveRecipients(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apperrors.New(apperrors.TypeValidation, "notification has no resolvable recipients")
	}

	written := make([]trips.Notification, 0, len(recipients))
	for _, userID := range recipients {
		n := trips.Notification{
			ID:              objectid.New(),
			RecipientUserID: userID,
			Type:            req.Type,
			Title:           req.Title,
			Message:         req.Message,
			Data:            req.Data,
		}
		created, err := f.store.CreateNotification(ctx, n)
		if err != nil {
			f.logger.Warn("notify: failed to persist notification",
				zap.String("recipient_user_id", userID), zap.Error(err))
			continue
		}
		written = append(written, created)
		f.enqueuePush(created)
	}
	return written, nil
}

// resolveRecipients deduplicates explicit user ids with every id held by
// a named role at call time.
func (f *Fanout) resolveRecipients(ctx context.Context, req Request) ([]string, error) {
	seen := make(map[string]bool, len(req.RecipientUserIDs))
	out := make([]string, 0, len(req.RecipientUserIDs))
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range req.RecipientUserIDs {
		add(id)
	}
	for _, role := range req.RecipientRoles {
		if f.directory == nil {
			continue
		}
		ids, err := f.directory.UserIDsForRole(ctx, role)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeUpstream, "resolving role recipients")
		}
		for _, id := range ids {
			add(id)
		}
	}
	return out, nil
}

// enqueuePush drops the push hint (logging a warning) rather than
// blocking the caller indefinitely if the sink has stalled; the
// notification itself is already durably persisted, so a dropped push
// hint only delays the future async-delivery path, never loses data.
func (f *Fanout) enqueuePush(n trips.Notification) {
	select {
	case f.pendingPush <- n:
	default:
		f.logger.Warn("notify: pending_push queue full, dropping push hint",
			zap.String("notification_id", n.ID))
	}
}

// runPushSink is the single writer draining pendingPush. A real push
// transport (APNs/FCM/websocket fanout) would live behind this loop;
// today it only logs, since no such transport is part of this module's
// scope — the queue and its single-writer discipline are what spec
// §4.13/§9 actually specify.
func (f *Fanout) runPushSink() {
	defer close(f.sinkDone)
	for n := range f.pendingPush {
		f.logger.Debug("notify: push-delivery hint drained",
			zap.String("notification_id", n.ID), zap.String("recipient_user_id", n.RecipientUserID))
	}
}

// Stop closes the pending-push queue and waits for the sink goroutine to
// drain it.
func (f *Fanout) Stop() {
	close(f.pendingPush)
	<-f.sinkDone
}
