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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	apperrors "github.com/samfms/scf/internal/errors"
	"github.com/samfms/scf/internal/cache"
	"github.com/samfms/scf/pkg/breaker"
)

// tokenCacheTTL is spec §4.5's default token-cache TTL.
const tokenCacheTTL = 5 * time.Minute

// SecurityClient is the external collaborator that verifies a raw token
// and returns the Principal it resolves to. Implementations translate
// whatever wire status the security service returns into one of the
// three outcomes the gate distinguishes: ok, and the two
// authentication/authorization failure kinds, or a generic error.
type SecurityClient interface {
	VerifyToken(ctx context.Context, token string) (VerifyOutcome, error)
}

// VerifyOutcome is the SecurityClient's classification of a single
// verify-token call.
type VerifyOutcome struct {
	Principal     Principal
	Authenticated bool // false on HTTP 401 — token rejected outright
	Authorized    bool // false on HTTP 403 — token valid but insufficient to verify
}

// Gate implements the verify-token flow from spec §4.5.
type Gate struct {
	client  SecurityClient
	breaker *breaker.Breaker
	cache   cache.Store
}

// New constructs a Gate. breaker guards the SecurityClient call; cache
// stores verified Principals keyed by a hash of the raw token.
func New(client SecurityClient, b *breaker.Breaker, store cache.Store) *Gate {
	return &Gate{client: client, breaker: b, cache: store}
}

// VerifyToken resolves token to a Principal, consulting the cache first
// and falling back to the breaker-guarded security service on miss.
func (g *Gate) VerifyToken(ctx context.Context, token string) (Principal, error) {
	key := tokenCacheKey(token)

	if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		var p Principal
		if err := json.Unmarshal(cached, &p); err == nil {
			return p, nil
		}
	}

	outcome, err := breaker.CallValue(ctx, g.breaker, func(ctx context.Context) (VerifyOutcome, error) {
		return g.client.VerifyToken(ctx, token)
	})
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return Principal{}, appErr
		}
		return Principal{}, apperrors.NewServiceUnavailableError("security-service", err)
	}

	if !outcome.Authenticated {
		return Principal{}, apperrors.New(apperrors.TypeAuthentication, "token rejected by security service")
	}
	if !outcome.Authorized {
		return Principal{}, apperrors.New(apperrors.TypeAuthorization, "token valid but not authorized")
	}

	if raw, err := json.Marshal(outcome.Principal); err == nil {
		_ = g.cache.Set(ctx, key, raw, tokenCacheTTL)
	}
	return outcome.Principal, nil
}

// RequirePermission raises Authorization if principal cannot perform
// action on resource at required scope.
func RequirePermission(p Principal, action, resource string, required Scope) error {
	if p.HasPermission(action, resource, required) {
		return nil
	}
	return apperrors.New(apperrors.TypeAuthorization,
		"principal lacks permission "+action+":"+resource)
}

// Sweep evicts expired cache entries; run by the scheduler (C8) every
// 5 minutes per spec §4.5/§4.8.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	return g.cache.Sweep(ctx)
}

func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "authgate:token:" + hex.EncodeToString(sum[:])
}
