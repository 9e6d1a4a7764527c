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
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/logging"
	"github.com/samfms/scf/pkg/broker"
)

// validate checks RequestEnvelope's struct tags before a request reaches
// dispatch. A single validator.Validate is safe for concurrent use and
// caches its struct reflection per type, so one package-level instance
// serves every Server.
var validate = validator.New()

// Server consumes RequestEnvelope messages for one service's request
// queue, dispatches them through a Router, and publishes the
// ResponseEnvelope back to the caller, per spec §4.2.
type Server struct {
	service string
	client  *broker.Client
	router  *Router
	dedup   *Dedup
	logger  *zap.Logger
}

// NewServer constructs a Server for service, dispatching through router
// and deduplicating through dedup.
func NewServer(service string, client *broker.Client, router *Router, dedup *Dedup, logger *zap.Logger) *Server {
	return &Server{
		service: service,
		client:  client,
		router:  router,
		dedup:   dedup,
		logger:  logging.NopIfNil(logger),
	}
}

// Topology declares this service's request queue and bindings, and the
// shared response exchange, per spec §4.2's fixed naming scheme.
func (s *Server) Topology(ch *broker.Channel) error {
	if err := ch.DeclareExchange(broker.ExchangeSpec{Name: RequestExchange, Kind: broker.ExchangeDirect, Durable: true}); err != nil {
		return err
	}
	if err := ch.DeclareExchange(broker.ExchangeSpec{Name: ResponseExchange, Kind: broker.ExchangeDirect, Durable: true}); err != nil {
		return err
	}
	queue := RequestQueueName(s.service)
	if _, err := ch.DeclareQueue(broker.QueueSpec{Name: queue, Durable: true}); err != nil {
		return err
	}
	return ch.Bind(broker.BindingSpec{Queue: queue, Exchange: RequestExchange, RoutingKey: RequestRoutingKey(s.service)})
}

// Serve consumes the service's request queue until ctx is cancelled.
// Each delivery is handled in its own goroutine so a slow handler never
// head-of-line-blocks unrelated requests sharing the connection.
func (s *Server) Serve(ctx context.Context, ch *broker.Channel, prefetch int) error {
	if err := ch.Qos(prefetch); err != nil {
		return err
	}
	deliveries, err := ch.Consume(ctx, RequestQueueName(s.service), s.service+"-rpc")
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

func (s *Server) handleDelivery(ctx context.Context, ch *broker.Channel, d broker.Delivery) {
	// Acknowledgement contract (spec §4.2): ack only after the handler
	// returns or a response has been published; a handler panic still
	// acks rather than poison-looping the message.
	defer func() {
		if err := d.Ack(); err != nil {
			s.logger.Warn("rpc: ack failed", zap.Error(err))
		}
	}()

	var req RequestEnvelope
	if err := json.Unmarshal(d.Body, &req); err != nil {
		s.logger.Error("rpc: malformed request envelope, dropping", zap.Error(err))
		return
	}

	resp := s.dispatch(ctx, req)
	s.reply(ctx, ch, resp)
}

func (s *Server) dispatch(ctx context.Context, req RequestEnvelope) ResponseEnvelope {
	if err := validate.Struct(req); err != nil {
		return Failure(req.CorrelationID, string(apperrors.TypeValidation), err.Error())
	}

	if cached, seen, err := s.dedup.CheckCorrelation(ctx, req.CorrelationID); err == nil && seen {
		return *cached
	}

	hash := ContentHash(req.Method, req.Endpoint, req.Data)
	if wait, isFirst := s.dedup.BeginContentHash(hash); !isFirst {
		select {
		case resp := <-wait:
			resp.CorrelationID = req.CorrelationID
			return resp
		case <-ctx.Done():
			return Failure(req.CorrelationID, string(apperrors.TypeTimeout), "request cancelled while waiting for shared response")
		}
	}

	resp := s.invoke(ctx, req)
	if err := s.dedup.Complete(ctx, req.CorrelationID, hash, resp); err != nil {
		s.logger.Warn("rpc: failed to persist dedup entry", zap.Error(err))
	}
	return resp
}

func (s *Server) invoke(ctx context.Context, req RequestEnvelope) ResponseEnvelope {
	handler, timeout, residual, err := s.router.Match(req.Endpoint)
	if err != nil {
		return Failure(req.CorrelationID, string(apperrors.TypeNotFound), err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: apperrors.Newf(apperrors.TypeInternal, "handler panic: %v", r)}
			}
		}()
		result, err := handler(callCtx, req.Method, req.Endpoint, residual, req.UserContext, req.Data)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		return Failure(req.CorrelationID, string(apperrors.TypeTimeout), "handler exceeded the per-endpoint timeout")
	case o := <-done:
		if o.err != nil {
			return errorResponse(req.CorrelationID, o.err)
		}
		return Success(req.CorrelationID, o.result)
	}
}

func errorResponse(correlationID string, err error) ResponseEnvelope {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError(err)
	}
	return Failure(correlationID, string(appErr.Type), appErr.Message)
}

func (s *Server) reply(ctx context.Context, ch *broker.Channel, resp ResponseEnvelope) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("rpc: failed to marshal response", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := ch.Publish(publishCtx, ResponseExchange, ResponseRouting, payload, broker.PublishOptions{
		Persistent:    true,
		ContentType:   "application/json",
		CorrelationID: resp.CorrelationID,
	}); err != nil {
		s.logger.Error("rpc: failed to publish response", zap.String("correlation_id", resp.CorrelationID), zap.Error(err))
	}
}
