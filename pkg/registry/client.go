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

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
)

// Client invokes discovered services over HTTP, marshalling requests
// and unmarshalling responses as JSON, per spec §4.6.
type Client struct {
	registry *Registry
	http     *http.Client
}

// NewClient constructs a Client resolving targets through registry.
func NewClient(registry *Registry) *Client {
	return &Client{registry: registry, http: &http.Client{Timeout: 10 * time.Second}}
}

// Invoke discovers service, issues method to path with body marshalled
// as JSON (nil body is allowed), and unmarshals the response into out
// (nil out discards the body). Any network or (de)serialization failure
// is surfaced as a ServiceDiscoveryError.
func (c *Client) Invoke(ctx context.Context, service, method, path string, body, out any) error {
	ep, ok := c.registry.Discover(service)
	if !ok {
		return apperrors.New(apperrors.TypeServiceUnavailable, fmt.Sprintf("%s is not registered or unhealthy", service))
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return ServiceDiscoveryError(service, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, ep.BaseURL()+path, reader)
	if err != nil {
		return ServiceDiscoveryError(service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ServiceDiscoveryError(service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apperrors.New(apperrors.TypeUpstream, fmt.Sprintf("%s returned status %d", service, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ServiceDiscoveryError(service, err)
	}
	return nil
}
