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

package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
)

// Caller is the gateway-side half of C2: it publishes RequestEnvelopes
// to a target service's request queue and correlates replies arriving
// on the single shared response queue bound to core.responses.
type Caller struct {
	client *broker.Client
	logger *zap.Logger

	publishCh *broker.Channel

	mu      sync.Mutex
	pending map[string]chan ResponseEnvelope
}

// NewCaller constructs a Caller. Start must be called once to declare
// topology and begin consuming the response queue before Request is
// used.
func NewCaller(client *broker.Client, logger *zap.Logger) *Caller {
	return &Caller{
		client:  client,
		logger:  logging.NopIfNil(logger),
		pending: make(map[string]chan ResponseEnvelope),
	}
}

// coreResponseQueue is the single queue the gateway process consumes for
// every service's replies, bound to service_responses/core.responses.
const coreResponseQueue = "core_service_responses"

// Start declares the response topology and begins consuming replies in
// the background until ctx is cancelled.
func (c *Caller) Start(ctx context.Context) error {
	declareCh, err := c.client.Channel()
	if err != nil {
		return err
	}
	if err := declareCh.DeclareExchange(broker.ExchangeSpec{Name: RequestExchange, Kind: broker.ExchangeDirect, Durable: true}); err != nil {
		return err
	}
	if err := declareCh.DeclareExchange(broker.ExchangeSpec{Name: ResponseExchange, Kind: broker.ExchangeDirect, Durable: true}); err != nil {
		return err
	}
	if _, err := declareCh.DeclareQueue(broker.QueueSpec{Name: coreResponseQueue, Durable: true}); err != nil {
		return err
	}
	if err := declareCh.Bind(broker.BindingSpec{Queue: coreResponseQueue, Exchange: ResponseExchange, RoutingKey: ResponseRouting}); err != nil {
		return err
	}

	c.publishCh = declareCh

	deliveries, err := declareCh.Consume(ctx, coreResponseQueue, "core-rpc-caller")
	if err != nil {
		return err
	}
	go c.consumeReplies(deliveries)
	return nil
}

func (c *Caller) consumeReplies(deliveries <-chan broker.Delivery) {
	for d := range deliveries {
		var resp ResponseEnvelope
		if err := json.Unmarshal(d.Body, &resp); err != nil {
			c.logger.Warn("rpc: malformed response envelope, dropping", zap.Error(err))
			_ = d.Ack()
			continue
		}

		c.mu.Lock()
		waiter, ok := c.pending[resp.CorrelationID]
		if ok {
			delete(c.pending, resp.CorrelationID)
		}
		c.mu.Unlock()

		if ok {
			waiter <- resp
		} else {
			c.logger.Warn("rpc: response for unknown or already-completed correlation id",
				zap.String("correlation_id", resp.CorrelationID))
		}
		_ = d.Ack()
	}
}

// Request publishes a RequestEnvelope to service's request queue and
// blocks until a matching ResponseEnvelope arrives or timeout elapses.
func (c *Caller) Request(ctx context.Context, service, method, endpoint string, uc UserContext, data any, timeout time.Duration) (ResponseEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ResponseEnvelope{}, apperrors.Wrap(err, apperrors.TypeValidation, "marshalling request data")
	}

	correlationID := uuid.NewString()
	req := RequestEnvelope{
		CorrelationID: correlationID,
		Method:        method,
		Endpoint:      endpoint,
		Data:          payload,
		UserContext:   uc,
		Timestamp:     time.Now().UTC(),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ResponseEnvelope{}, apperrors.Wrap(err, apperrors.TypeInternal, "marshalling request envelope")
	}

	waiter := make(chan ResponseEnvelope, 1)
	c.mu.Lock()
	c.pending[correlationID] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.publishCh.Publish(callCtx, RequestExchange, RequestRoutingKey(service), body, broker.PublishOptions{
		Persistent:    true,
		ContentType:   "application/json",
		CorrelationID: correlationID,
		ReplyTo:       ResponseRouting,
	}); err != nil {
		return ResponseEnvelope{}, err
	}

	select {
	case resp := <-waiter:
		return resp, nil
	case <-callCtx.Done():
		return ResponseEnvelope{}, apperrors.New(apperrors.TypeTimeout, "rpc call to "+service+" timed out")
	}
}
