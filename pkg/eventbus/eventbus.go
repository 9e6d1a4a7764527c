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

// Package eventbus implements C3: topic-exchange publish/subscribe
// between services, with per-queue TTL and max-length bounding,
// exponential-backoff redelivery, and dead-letter republish on
// exhausted retries, using retry-count headers on the redelivered
// message itself rather than a separate retry-tracking store.
package eventbus

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
)

// Event is a received message dispatched to a Handler.
type Event struct {
	Exchange    string
	RoutingKey  string
	Body        []byte
	Headers     amqp.Table
	RetryCount  int
	Redelivered bool
}

// Handler processes one Event. Returning an error triggers the retry
// contract described in spec §4.3.
type Handler func(ctx context.Context, evt Event) error

// QueueOptions configures a consumer's durable queue, defaulted per
// spec §4.3.
type QueueOptions struct {
	MessageTTL      time.Duration // x-message-ttl, default 5 min
	MaxLength       int           // x-max-length with drop-head overflow, 0 disables
	RetryDelay      time.Duration // base delay for redelivery backoff
	MaxRetryAttempts int          // default 3
}

// DefaultQueueOptions returns spec §4.3/§6's stated defaults.
func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		MessageTTL:       5 * time.Minute,
		MaxLength:        1000,
		RetryDelay:       2 * time.Second,
		MaxRetryAttempts: 3,
	}
}

// deadLetterRoutingKey is the fixed routing key spec §6 binds every
// service's DLQ to.
const deadLetterRoutingKey = "failed"

// Bus wires a broker.Client into the publish and subscribe sides of the
// event bus.
type Bus struct {
	client *broker.Client
	logger *zap.Logger
}

// New constructs a Bus over an already-connected broker client.
func New(client *broker.Client, logger *zap.Logger) *Bus {
	return &Bus{client: client, logger: logging.NopIfNil(logger)}
}

// DeclareTopicExchange declares a durable topic exchange for a producer
// service (e.g. "vehicle_events", "security_events"), per spec §4.3.
func (b *Bus) DeclareTopicExchange(ch *broker.Channel, name string) error {
	return ch.DeclareExchange(broker.ExchangeSpec{Name: name, Kind: broker.ExchangeTopic, Durable: true})
}

// Publish emits a persistent event to exchange under routingKey.
func (b *Bus) Publish(ctx context.Context, ch *broker.Channel, exchange, routingKey string, payload []byte) error {
	return ch.Publish(ctx, exchange, routingKey, payload, broker.PublishOptions{
		Persistent:  true,
		ContentType: "application/json",
	})
}
