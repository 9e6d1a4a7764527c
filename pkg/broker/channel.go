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

package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeKind mirrors AMQP exchange types. The fabric only ever declares
// topic exchanges (spec §4.1/§4.3: routing keys carry wildcard segments
// for the event bus's topic subscriptions) and the direct exchange RPC
// replies are routed through.
type ExchangeKind string

const (
	ExchangeTopic  ExchangeKind = amqp.ExchangeTopic
	ExchangeDirect ExchangeKind = amqp.ExchangeDirect
)

// ExchangeSpec describes an exchange to declare.
type ExchangeSpec struct {
	Name       string
	Kind       ExchangeKind
	Durable    bool
	AutoDelete bool
}

// QueueSpec describes a queue to declare, including dead-letter routing
// (spec §4.3's DLQ contract).
type QueueSpec struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       amqp.Table
}

// BindingSpec describes a queue-to-exchange binding.
type BindingSpec struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

// Channel is a single caller-owned AMQP channel in publisher-confirm mode.
type Channel struct {
	ch     *amqp.Channel
	client *Client
	logger *zap.Logger
}

// DeclareExchange declares an exchange. Idempotent: redeclaring with
// identical parameters is a no-op on the broker side.
func (c *Channel) DeclareExchange(spec ExchangeSpec) error {
	err := c.ch.ExchangeDeclare(spec.Name, string(spec.Kind), spec.Durable, spec.AutoDelete, false, false, nil)
	if err != nil {
		return newConfigConflict(spec.Name, err)
	}
	return nil
}

// DeclareQueue declares a queue, preferring a passive declare first and
// falling back to an active declare only when the queue does not yet
// exist. This is the spec §4.1 policy for staying idempotent under
// configuration drift: a passive declare that succeeds proves the queue
// already exists (whatever its arguments), so we never attempt to redefine
// it and trip amqp091-go's "inequivalent arg" channel-closing error. Only
// a missing queue is actively declared with our own arguments.
func (c *Channel) DeclareQueue(spec QueueSpec) (amqp.Queue, error) {
	q, err := c.ch.QueueDeclarePassive(spec.Name, spec.Durable, spec.AutoDelete, spec.Exclusive, false, spec.Args)
	if err == nil {
		return q, nil
	}

	// A failed passive declare closes the channel; amqp091-go's ch.Channel
	// recovers by handing back a usable channel reference is not
	// guaranteed, so reopen before the active declare.
	fresh, reopenErr := c.client.reopen(c.ch)
	if reopenErr != nil {
		return amqp.Queue{}, newUnavailablef("reopening channel after passive declare miss: %v", reopenErr)
	}
	c.ch = fresh

	q, err = c.ch.QueueDeclare(spec.Name, spec.Durable, spec.AutoDelete, spec.Exclusive, false, spec.Args)
	if err != nil {
		return amqp.Queue{}, newConfigConflict(spec.Name, err)
	}
	return q, nil
}

// Bind binds a queue to an exchange under a routing key.
func (c *Channel) Bind(spec BindingSpec) error {
	if err := c.ch.QueueBind(spec.Queue, spec.RoutingKey, spec.Exchange, false, nil); err != nil {
		return newConfigConflict(fmt.Sprintf("%s->%s", spec.Queue, spec.Exchange), err)
	}
	return nil
}

// Qos sets the channel's consumer prefetch, used by workers that must not
// pull more unacked messages than they can process concurrently.
func (c *Channel) Qos(prefetchCount int) error {
	return c.ch.Qos(prefetchCount, 0, false)
}

// PublishOptions controls a single publish call.
type PublishOptions struct {
	Persistent    bool
	ContentType   string
	CorrelationID string
	ReplyTo       string
	Headers       amqp.Table
	Expiration    string // milliseconds, as a decimal string, for TTL'd messages
}

// Publish sends payload to exchange under routingKey and waits for the
// broker's publisher confirm before returning, satisfying the spec's
// at-least-once delivery guarantee for persistent messages.
func (c *Channel) Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts PublishOptions) error {
	deliveryMode := amqp.Transient
	if opts.Persistent {
		deliveryMode = amqp.Persistent
	}

	confirms := c.ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	err := c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   opts.ContentType,
		DeliveryMode:  deliveryMode,
		CorrelationId: opts.CorrelationID,
		ReplyTo:       opts.ReplyTo,
		Headers:       opts.Headers,
		Expiration:    opts.Expiration,
		Body:          payload,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return newUnavailablef("publishing to %s/%s: %v", exchange, routingKey, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case confirm, ok := <-confirms:
		if !ok || !confirm.Ack {
			return newUnavailablef("broker nacked publish to %s/%s", exchange, routingKey)
		}
		return nil
	}
}

// Delivery is the subset of amqp.Delivery consumers need, kept narrow so
// C2/C3 depend on this package's vocabulary rather than amqp091-go's.
type Delivery struct {
	Body          []byte
	CorrelationID string
	ReplyTo       string
	Exchange      string
	RoutingKey    string
	Headers       amqp.Table
	Redelivered   bool

	raw amqp.Delivery
}

// Ack acknowledges the delivery, removing it from the queue.
func (d Delivery) Ack() error { return d.raw.Ack(false) }

// Nack negatively acknowledges the delivery. requeue controls whether the
// broker redelivers it or routes it to the queue's DLQ (if configured).
func (d Delivery) Nack(requeue bool) error { return d.raw.Nack(false, requeue) }

// Consume starts consuming from queue and returns a channel of Delivery
// values. The returned channel closes when the underlying AMQP channel
// closes (e.g. on reconnect); callers are expected to re-Consume against
// a freshly opened Channel after a Client.Reconnected() signal.
func (c *Channel) Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error) {
	raw, err := c.ch.ConsumeWithContext(ctx, queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, newUnavailablef("consuming from %s: %v", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range raw {
			out <- Delivery{
				Body:          d.Body,
				CorrelationID: d.CorrelationId,
				ReplyTo:       d.ReplyTo,
				Exchange:      d.Exchange,
				RoutingKey:    d.RoutingKey,
				Headers:       d.Headers,
				Redelivered:   d.Redelivered,
				raw:           d,
			}
		}
	}()
	return out, nil
}

// Close closes the underlying AMQP channel.
func (c *Channel) Close() error {
	return c.ch.Close()
}

// reopen opens a replacement channel on the same connection after old has
// been closed by the broker (e.g. following a failed passive declare),
// re-enabling publisher confirms on it.
func (c *Client) reopen(old *amqp.Channel) (*amqp.Channel, error) {
	_ = old
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, newUnavailable("no live connection")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}
