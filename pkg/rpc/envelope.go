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

// Package rpc implements C2: correlation-id request/response messaging
// over the broker, with struct-tag envelope validation, content-hash
// deduplication, per-endpoint timeouts, and longest-prefix endpoint
// routing. The envelope-decode-then-dispatch shape mirrors the
// CarPooling trips-api consumer; the request/response pair is tested
// the same client/server way any RPC-style call is.
package rpc

import (
	"encoding/json"
	"time"
)

// UserContext travels with every RequestEnvelope; handlers authorize
// against it rather than re-deriving identity from the raw token.
type UserContext struct {
	UserID      string   `json:"user_id" validate:"required"`
	Role        string   `json:"role" validate:"required"`
	Permissions []string `json:"permissions"`
}

// RequestEnvelope is the wire shape for every inbound RPC call, per
// spec §3's data model. Struct tags are validated with
// github.com/go-playground/validator/v10 before the envelope reaches a
// handler.
type RequestEnvelope struct {
	CorrelationID string          `json:"correlation_id" validate:"required"`
	Method        string          `json:"method" validate:"required"`
	Endpoint      string          `json:"endpoint" validate:"required"`
	Data          json.RawMessage `json:"data,omitempty"`
	UserContext   UserContext     `json:"user_context" validate:"required"`
	Timestamp     time.Time       `json:"timestamp" validate:"required"`
}

// Status is the ResponseEnvelope's outcome discriminator.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorInfo is the stable-type error shape nested in ResponseEnvelope.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResponseEnvelope is the wire shape for every RPC reply.
type ResponseEnvelope struct {
	CorrelationID string          `json:"correlation_id"`
	Status        Status          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         *ErrorInfo      `json:"error,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Success builds a success ResponseEnvelope wrapping result, marshalled
// to JSON. A marshal failure here indicates a handler bug, so it is
// surfaced as an Internal error rather than silently dropping the body.
func Success(correlationID string, result any) ResponseEnvelope {
	resp := ResponseEnvelope{
		CorrelationID: correlationID,
		Status:        StatusSuccess,
		Timestamp:     time.Now().UTC(),
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return Failure(correlationID, "Internal", "marshalling handler result: "+err.Error())
		}
		resp.Data = data
	}
	return resp
}

// Failure builds an error ResponseEnvelope. errType is the stable type
// string used by the error taxonomy (e.g. "Validation", "NotFound");
// message is the human-facing text.
func Failure(correlationID, errType, message string) ResponseEnvelope {
	return ResponseEnvelope{
		CorrelationID: correlationID,
		Status:        StatusError,
		Error:         &ErrorInfo{Type: errType, Message: message},
		Timestamp:     time.Now().UTC(),
	}
}

// Exchange and routing-key conventions fixed by spec §4.2.
const (
	RequestExchange  = "service_requests"
	ResponseExchange = "service_responses"
	ResponseRouting  = "core.responses"
)

// RequestQueueName returns the per-service request queue name.
func RequestQueueName(service string) string {
	return service + "_service_requests"
}

// RequestRoutingKey returns the routing key a service's request queue
// binds to on the shared request exchange.
func RequestRoutingKey(service string) string {
	return service + ".requests"
}
