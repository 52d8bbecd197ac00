// Package auth validates bearer tokens against an external identity
// provider's JWKS endpoint. Authentication of A2A peers is out of scope
// (spec non-goal); this validates callers of the host's own HTTP surface
// when requireAuth is configured on.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTValidator validates JWTs against a JWKS endpoint, auto-refreshing
// the cached key set to tolerate key rotation.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// Claims is the subset of JWT claims this host cares about.
type Claims struct {
	Subject string                 `json:"sub"`
	Role    string                 `json:"role"`
	Custom  map[string]interface{} `json:"-"`
}

// NewJWTValidator builds a validator that fetches and caches the JWKS at
// jwksURL, refreshing at most every 15 minutes.
func NewJWTValidator(jwksURL, issuer, audience string) (*JWTValidator, error) {
	ctx := context.Background()

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("auth: register JWKS url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("auth: initial JWKS fetch from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer, and audience, and
// extracts claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject(), Custom: make(map[string]interface{})}
	if role, ok := token.Get("role"); ok {
		if roleStr, ok := role.(string); ok {
			claims.Role = roleStr
		}
	}
	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "role", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}

	return claims, nil
}
