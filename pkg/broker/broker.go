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

// Package broker implements C1: a resilient AMQP client wrapping
// github.com/rabbitmq/amqp091-go with publisher confirms, transparent
// reconnect, and idempotent-under-drift queue declaration. Grounded on the
// corpus's own RabbitMQ clients — CarPooling's trips-api reservation
// consumer (exchange/queue/bind/qos/consume sequencing) and the ride-hail
// driver broker's EnsureConnection reconnect loop.
package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/samfms/scf/internal/logging"
)

// Config configures a Client's connection and reconnect behaviour.
type Config struct {
	URL string

	// Heartbeat is the AMQP heartbeat interval negotiated with the broker.
	Heartbeat time.Duration

	// MaxRetries bounds the exponential-backoff reconnect loop run by
	// Connect. Spec §4.1: base 2s, factor 2, max 5 attempts.
	MaxRetries int

	// PublishTimeout defaults to 10s. Channel.Publish does not read it: a
	// publish on a channel whose connection has dropped fails at once, and
	// the wait for the publisher confirm is bounded only by the caller's ctx.
	PublishTimeout time.Duration
}

// DefaultConfig returns the spec §4.1/§6 defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Heartbeat:      10 * time.Second,
		MaxRetries:     5,
		PublishTimeout: 10 * time.Second,
	}
}

// Client is a single resilient connection to the broker. It owns exactly
// one *amqp.Connection at a time; channels opened through Channel() are
// each owned exclusively by their caller for the lifetime of that
// channel's consumer, per the data model's ownership rules (spec §3).
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	connecting bool
	closed     bool

	reconnectCh chan struct{}
}

// New constructs an unconnected Client. Call Connect before use.
func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:         cfg,
		logger:      logging.NopIfNil(logger),
		reconnectCh: make(chan struct{}, 1),
	}
}

// Connect dials the broker with exponential backoff and jitter: base 2s,
// factor 2, up to cfg.MaxRetries attempts, per spec §4.1. It also starts
// the background watcher that transparently reconnects on unexpected
// connection loss.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dialWithBackoffConn(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.watch(ctx, conn)
	return nil
}

// watch blocks until conn closes unexpectedly, then reconnects forever
// (bounded per attempt by the same backoff schedule) until ctx is
// cancelled or Close is called.
func (c *Client) watch(ctx context.Context, conn *amqp.Connection) {
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-ctx.Done():
		return
	case err := <-closeCh:
		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}
		c.logger.Warn("broker: connection closed unexpectedly, reconnecting",
			zap.Error(asError(err)))
	}

	for {
		if ctx.Err() != nil {
			return
		}
		newConn, err := c.dialWithBackoffConn(ctx)
		if err != nil {
			c.logger.Error("broker: reconnect attempts exhausted, will keep retrying", zap.Error(err))
			continue
		}

		c.mu.Lock()
		c.conn = newConn
		c.mu.Unlock()

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}

		c.watch(ctx, newConn)
		return
	}
}

func asError(err *amqp.Error) error {
	if err == nil {
		return nil
	}
	return err
}

// dialWithBackoffConn performs the actual dial+backoff loop and returns a
// live connection or an error after MaxRetries attempts.
func (c *Client) dialWithBackoffConn(ctx context.Context) (*amqp.Connection, error) {
	const (
		baseDelay = 2 * time.Second
		factor    = 2.0
	)

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(baseDelay) * pow(factor, float64(attempt-1)))
			delay += time.Duration(rand.Int63n(int64(delay) / 2))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{Heartbeat: c.cfg.Heartbeat})
		if err == nil {
			c.logger.Info("broker: connected", zap.Int("attempt", attempt+1))
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("broker: connect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, newUnavailablef("failed to connect after %d attempts: %v", c.cfg.MaxRetries, lastErr)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

// Channel opens a fresh channel in publisher-confirm mode. Each channel is
// owned exclusively by the caller; the broker Client itself never shares
// channels across callers.
func (c *Client) Channel() (*Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, newUnavailable("no live connection")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, newUnavailablef("opening channel: %v", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, newUnavailablef("enabling confirms: %v", err)
	}

	return &Channel{
		ch:     ch,
		client: c,
		logger: c.logger,
	}, nil
}

// Reconnected returns a channel that receives a value each time the
// client establishes a new connection after an unexpected drop, so
// long-lived consumers (C2/C3) know to re-open their channel.
func (c *Client) Reconnected() <-chan struct{} {
	return c.reconnectCh
}

// Close shuts the connection down and marks the client closed so the
// watcher stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
