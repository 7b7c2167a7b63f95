// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"tasknest/internal/models"
)

// Claims is the subset of an OpenID Connect ID token used to build a profile.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verifier validates federated identity tokens.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// JWTVerifier checks token signatures against a key source, normally the
// provider's JWKS endpoint.
type JWTVerifier struct {
	keyfunc  jwt.Keyfunc
	issuer   string
	audience string
}

// NewJWKSVerifier fetches public keys from jwksURL. keyfunc caches them
// and refreshes per the endpoint's HTTP cache headers.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string) (*JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}
	slog.Info("JWT verifier initialized", "jwks_url", jwksURL)
	return NewJWTVerifier(jwks.Keyfunc, issuer, audience), nil
}

// NewJWTVerifier builds a verifier on any key function. Empty issuer or
// audience skips that check.
func NewJWTVerifier(kf jwt.Keyfunc, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{keyfunc: kf, issuer: issuer, audience: audience}
}

// Verify parses and validates token. Any failure is ErrUnauthorized.
func (v *JWTVerifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		// Prevent algorithm confusion: asymmetric algorithms only.
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.keyfunc, opts...)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		return nil, fmt.Errorf("verify token: %w", models.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("verify token: %w", models.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("token missing subject or email: %w", models.ErrUnauthorized)
	}
	return claims, nil
}
