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

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
)

// binding is one exchange/pattern/handler registration.
type binding struct {
	exchange string
	pattern  string
	handler  Handler
}

// Subscriber owns one durable queue bound to one or more
// exchange/pattern pairs, per spec §4.3's "one durable queue per
// service" rule.
type Subscriber struct {
	service  string
	queue    string
	opts     QueueOptions
	bindings []binding
	logger   *zap.Logger
}

// NewSubscriber constructs a Subscriber for queue, with opts controlling
// TTL, max length, and retry behaviour. service names the owning
// service and determines the dead-letter exchange/queue pair
// (<service>_dlx / <service>_dlq) per spec §6.
func NewSubscriber(service, queue string, opts QueueOptions, logger *zap.Logger) *Subscriber {
	return &Subscriber{service: service, queue: queue, opts: opts, logger: logging.NopIfNil(logger)}
}

func (s *Subscriber) dlxName() string { return s.service + "_dlx" }
func (s *Subscriber) dlqName() string { return s.service + "_dlq" }

// Bind registers h for messages on exchange matching pattern. Returns
// the Subscriber for chaining multiple bindings.
func (s *Subscriber) Bind(exchange, pattern string, h Handler) *Subscriber {
	s.bindings = append(s.bindings, binding{exchange: exchange, pattern: pattern, handler: h})
	return s
}

// Topology declares every bound exchange, the dead-letter exchange, this
// subscriber's queue (with TTL/max-length/DLX arguments), and every
// registered binding.
func (s *Subscriber) Topology(ch *broker.Channel) error {
	seen := make(map[string]bool)
	for _, b := range s.bindings {
		if seen[b.exchange] {
			continue
		}
		seen[b.exchange] = true
		if err := ch.DeclareExchange(broker.ExchangeSpec{Name: b.exchange, Kind: broker.ExchangeTopic, Durable: true}); err != nil {
			return err
		}
	}

	if err := ch.DeclareExchange(broker.ExchangeSpec{Name: s.dlxName(), Kind: broker.ExchangeDirect, Durable: true}); err != nil {
		return err
	}
	if _, err := ch.DeclareQueue(broker.QueueSpec{Name: s.dlqName(), Durable: true}); err != nil {
		return err
	}
	if err := ch.Bind(broker.BindingSpec{Queue: s.dlqName(), Exchange: s.dlxName(), RoutingKey: deadLetterRoutingKey}); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    s.dlxName(),
		"x-dead-letter-routing-key": deadLetterRoutingKey,
	}
	if s.opts.MessageTTL > 0 {
		args["x-message-ttl"] = s.opts.MessageTTL.Milliseconds()
	}
	if s.opts.MaxLength > 0 {
		args["x-max-length"] = s.opts.MaxLength
		args["x-overflow"] = "drop-head"
	}

	if _, err := ch.DeclareQueue(broker.QueueSpec{Name: s.queue, Durable: true, Args: args}); err != nil {
		return err
	}

	for _, b := range s.bindings {
		if err := ch.Bind(broker.BindingSpec{Queue: s.queue, Exchange: b.exchange, RoutingKey: b.pattern}); err != nil {
			return err
		}
	}
	return nil
}

// Consume runs the subscribe loop until ctx is cancelled.
func (s *Subscriber) Consume(ctx context.Context, ch *broker.Channel, prefetch int) error {
	if err := ch.Qos(prefetch); err != nil {
		return err
	}
	deliveries, err := ch.Consume(ctx, s.queue, s.queue+"-consumer")
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			go s.handleDelivery(ctx, ch, d)
		}
	}
}

func (s *Subscriber) handleDelivery(ctx context.Context, ch *broker.Channel, d broker.Delivery) {
	handler := s.matchHandler(d.RoutingKey)
	if handler == nil {
		s.logger.Warn("eventbus: delivery matched no bound pattern, dropping",
			zap.String("routing_key", d.RoutingKey))
		_ = d.Ack()
		return
	}

	retryCount := retryCountOf(d.Headers)
	evt := Event{
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Headers:     d.Headers,
		RetryCount:  retryCount,
		Redelivered: d.Redelivered,
	}

	err := handler(ctx, evt)
	if err == nil {
		_ = d.Ack()
		return
	}

	if retryCount >= s.opts.MaxRetryAttempts {
		s.deadLetter(ctx, ch, d, err)
		return
	}

	s.scheduleRetry(ctx, ch, d, retryCount, err)
}

func (s *Subscriber) matchHandler(routingKey string) Handler {
	for _, b := range s.bindings {
		if MatchesPattern(b.pattern, routingKey) {
			return b.handler
		}
	}
	return nil
}

// scheduleRetry waits the exponential-backoff delay (base RetryDelay,
// factor 2) then republishes the message to its original exchange and
// routing key with x-retry-count incremented, acking the original
// delivery once the republish succeeds.
func (s *Subscriber) scheduleRetry(ctx context.Context, ch *broker.Channel, d broker.Delivery, retryCount int, cause error) {
	delay := backoffDelay(s.opts.RetryDelay, retryCount)

	select {
	case <-ctx.Done():
		_ = d.Nack(true)
		return
	case <-time.After(delay):
	}

	headers := cloneHeaders(d.Headers)
	headers["x-retry-count"] = retryCount + 1

	err := ch.Publish(ctx, d.Exchange, d.RoutingKey, d.Body, broker.PublishOptions{
		Persistent: true,
		Headers:    headers,
	})
	if err != nil {
		s.logger.Error("eventbus: retry republish failed, requeuing instead",
			zap.Error(err), zap.Error(cause))
		_ = d.Nack(true)
		return
	}
	_ = d.Ack()
}

// deadLetter republishes d to this service's dead-letter exchange under
// the fixed "failed" routing key, with the required failure headers. If
// that publish itself fails, the failure is structurally logged and the
// original message is still acked — the bus must never block on DLQ
// unavailability (spec §4.3).
func (s *Subscriber) deadLetter(ctx context.Context, ch *broker.Channel, d broker.Delivery, cause error) {
	headers := cloneHeaders(d.Headers)
	headers["x-failure-reason"] = cause.Error()
	headers["x-failed-timestamp"] = time.Now().UTC().Format(time.RFC3339)
	headers["x-original-routing-key"] = d.RoutingKey
	headers["x-max-retries-exceeded"] = true

	err := ch.Publish(ctx, s.dlxName(), deadLetterRoutingKey, d.Body, broker.PublishOptions{
		Persistent: true,
		Headers:    headers,
	})
	if err != nil {
		s.logger.Error("eventbus: dead-letter publish failed, dropping message after exhausting retries",
			zap.String("routing_key", d.RoutingKey), zap.Error(err), zap.Error(cause))
	} else {
		s.logger.Warn("eventbus: message moved to dead-letter exchange after exhausting retries",
			zap.String("routing_key", d.RoutingKey), zap.Error(cause))
	}
	_ = d.Ack()
}

func retryCountOf(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func cloneHeaders(headers amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// backoffDelay computes base * 2^retryCount, matching the broker
// client's own exponential schedule (spec §4.1/§4.3 share the same
// "base, factor 2" shape).
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}
