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
	"sort"
	"strings"
	"sync"
	"time"
)

// Handler processes one RPC call. data is the raw JSON of the request
// envelope's top-level data field (UserContext carries no data field);
// residual is whatever of endpoint remains after the matched prefix,
// letting a handler pick a sub-action.
type Handler func(ctx context.Context, method, endpoint, residual string, uc UserContext, data json.RawMessage) (any, error)

// route is one registered endpoint prefix.
type route struct {
	prefix  string
	timeout time.Duration
	handler Handler
}

// Router performs longest-prefix matching against a static table built
// at registration time, per spec §4.2. Registration happens once at
// service startup; routing itself takes only a read lock so concurrent
// RPC dispatch never contends on registration internals.
type Router struct {
	mu             sync.RWMutex
	routes         []route
	defaultTimeout time.Duration
}

// NewRouter constructs a Router whose handlers default to timeout when
// not overridden by Handle's own timeout argument.
func NewRouter(defaultTimeout time.Duration) *Router {
	return &Router{defaultTimeout: defaultTimeout}
}

// Handle registers h for requests whose endpoint has prefix. A timeout
// of 0 uses the router's default (spec §4.2: 25s default, "override by
// class").
func (r *Router) Handle(prefix string, timeout time.Duration, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	r.routes = append(r.routes, route{prefix: prefix, timeout: timeout, handler: h})
	sort.Slice(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// ErrNoRoute is returned by Match when no registered prefix fits the
// endpoint.
type ErrNoRoute struct{ Endpoint string }

func (e *ErrNoRoute) Error() string { return "rpc: no route registered for endpoint " + e.Endpoint }

// Match finds the longest registered prefix of endpoint and returns its
// handler, timeout, and the residual path past the matched prefix.
func (r *Router) Match(endpoint string) (h Handler, timeout time.Duration, residual string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if endpoint == rt.prefix || strings.HasPrefix(endpoint, rt.prefix+"/") {
			return rt.handler, rt.timeout, strings.TrimPrefix(strings.TrimPrefix(endpoint, rt.prefix), "/"), nil
		}
	}
	return nil, 0, "", &ErrNoRoute{Endpoint: endpoint}
}
