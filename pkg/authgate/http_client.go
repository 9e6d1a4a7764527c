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

package authgate

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HTTPSecurityClient calls a security service's verify-token endpoint
// over plain HTTP, per spec §4.5's 200/401/403/timeout contract.
type HTTPSecurityClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPSecurityClient constructs a client with a sane request timeout.
func NewHTTPSecurityClient(baseURL string) *HTTPSecurityClient {
	return &HTTPSecurityClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyTokenResponse struct {
	UserID      string       `json:"user_id"`
	Email       string       `json:"email"`
	Role        Role         `json:"role"`
	Permissions []rawPerm    `json:"permissions"`
	OrgID       string       `json:"org_id,omitempty"`
	FleetIDs    []string     `json:"fleet_ids,omitempty"`
}

type rawPerm struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Scope    string `json:"scope"`
}

// VerifyToken implements SecurityClient.
func (c *HTTPSecurityClient) VerifyToken(ctx context.Context, token string) (VerifyOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/verify", nil)
	if err != nil {
		return VerifyOutcome{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return VerifyOutcome{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return VerifyOutcome{Authenticated: false}, nil
	case http.StatusForbidden:
		return VerifyOutcome{Authenticated: true, Authorized: false}, nil
	case http.StatusOK:
		var body verifyTokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return VerifyOutcome{}, err
		}
		return VerifyOutcome{
			Authenticated: true,
			Authorized:    true,
			Principal:     toPrincipal(body),
		}, nil
	default:
		return VerifyOutcome{}, &unexpectedStatusError{status: resp.StatusCode}
	}
}

type unexpectedStatusError struct{ status int }

func (e *unexpectedStatusError) Error() string {
	return "authgate: unexpected security service status"
}

func toPrincipal(body verifyTokenResponse) Principal {
	perms := make([]Permission, 0, len(body.Permissions))
	for _, rp := range body.Permissions {
		scope, err := ParseScope(rp.Scope)
		if err != nil {
			continue
		}
		perms = append(perms, Permission{Action: rp.Action, Resource: rp.Resource, Scope: scope})
	}
	return Principal{
		UserID:      body.UserID,
		Email:       body.Email,
		Role:        body.Role,
		Permissions: perms,
		OrgID:       body.OrgID,
		FleetIDs:    body.FleetIDs,
	}
}
