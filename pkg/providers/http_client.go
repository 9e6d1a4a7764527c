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

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samfms/scf/internal/geo"
)

// HTTPRoutingProvider calls a routing vendor over a generic JSON REST
// contract: this package's abstract operations are all the spec
// specifies, so the concrete wire shape below is this module's own,
// not any particular vendor's. Grounded on authgate.HTTPSecurityClient's
// baseURL+http.Client shape for calling out to a configured external
// collaborator.
type HTTPRoutingProvider struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPRoutingProvider constructs a client with a request timeout sized
// for an interactive route computation.
func NewHTTPRoutingProvider(baseURL, apiKey string) *HTTPRoutingProvider {
	return &HTTPRoutingProvider{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type routeRequest struct {
	Waypoints []geo.Point `json:"waypoints"`
}

type routeResponse struct {
	DistanceM   float64     `json:"distance_m"`
	DurationS   float64     `json:"duration_s"`
	Coordinates []geo.Point `json:"coordinates"`
}

func (p *HTTPRoutingProvider) Route(ctx context.Context, waypoints []geo.Point) (Route, error) {
	var out routeResponse
	if err := p.post(ctx, "/route", routeRequest{Waypoints: waypoints}, &out); err != nil {
		return Route{}, err
	}
	return Route{DistanceM: out.DistanceM, DurationS: out.DurationS, Coordinates: out.Coordinates}, nil
}

type alternativesRequest struct {
	Origin          geo.Point `json:"origin"`
	Destination     geo.Point `json:"destination"`
	MaxAlternatives int       `json:"max_alternatives"`
}

type alternativesResponse struct {
	Routes []routeResponse `json:"routes"`
}

func (p *HTTPRoutingProvider) Alternatives(ctx context.Context, origin, destination geo.Point, maxAlternatives int) ([]Route, error) {
	var out alternativesResponse
	req := alternativesRequest{Origin: origin, Destination: destination, MaxAlternatives: maxAlternatives}
	if err := p.post(ctx, "/alternatives", req, &out); err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(out.Routes))
	for _, r := range out.Routes {
		routes = append(routes, Route{DistanceM: r.DistanceM, DurationS: r.DurationS, Coordinates: r.Coordinates})
	}
	return routes, nil
}

func (p *HTTPRoutingProvider) post(ctx context.Context, path string, body, out any) error {
	return httpPostJSON(ctx, p.HTTP, p.BaseURL+path, p.APIKey, body, out)
}

// HTTPTrafficProvider calls a traffic vendor's live-duration endpoint
// over the same kind of generic JSON REST contract.
type HTTPTrafficProvider struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPTrafficProvider constructs a client with a request timeout sized
// for an interactive traffic probe.
func NewHTTPTrafficProvider(baseURL, apiKey string) *HTTPTrafficProvider {
	return &HTTPTrafficProvider{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type liveDurationRequest struct {
	Route         routeResponse `json:"route"`
	DepartureTime time.Time     `json:"departure_time"`
}

type liveDurationResponse struct {
	DurationS float64 `json:"duration_s"`
}

func (p *HTTPTrafficProvider) LiveDuration(ctx context.Context, route Route, departureTime time.Time) (time.Duration, error) {
	var out liveDurationResponse
	req := liveDurationRequest{
		Route:         routeResponse{DistanceM: route.DistanceM, DurationS: route.DurationS, Coordinates: route.Coordinates},
		DepartureTime: departureTime,
	}
	if err := httpPostJSON(ctx, p.HTTP, p.BaseURL+"/traffic/live-duration", p.APIKey, req, &out); err != nil {
		return 0, err
	}
	return time.Duration(out.DurationS * float64(time.Second)), nil
}

// HTTPSpeedLimitProvider calls a map vendor's speed-limit lookup.
type HTTPSpeedLimitProvider struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPSpeedLimitProvider constructs a client with a short timeout:
// speed-limit lookups gate every phone ping and must not stall C11.
func NewHTTPSpeedLimitProvider(baseURL, apiKey string) *HTTPSpeedLimitProvider {
	return &HTTPSpeedLimitProvider{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: 3 * time.Second}}
}

type speedLimitResponse struct {
	LimitKMH float64 `json:"limit_kmh"`
}

func (p *HTTPSpeedLimitProvider) SpeedLimitKMH(ctx context.Context, at geo.Point) (float64, error) {
	var out speedLimitResponse
	if err := httpPostJSON(ctx, p.HTTP, p.BaseURL+"/speed-limit", p.APIKey, at, &out); err != nil {
		return DefaultSpeedLimitKMH, err
	}
	if out.LimitKMH <= 0 {
		return DefaultSpeedLimitKMH, nil
	}
	return out.LimitKMH, nil
}

func httpPostJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("providers: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
