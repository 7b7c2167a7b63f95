// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"tasknest/internal/models"
	"tasknest/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	userKey      contextKey = "user"
	sessionIDKey contextKey = "session_id"
	sourceKey    contextKey = "session_source"
)

// Resolver maps a session id to its signed-in user.
type Resolver interface {
	Current(ctx context.Context, sessionID string) (*models.User, error)
}

// LoadIdentity resolves the request's session (bearer token or cookie) to
// a user and stores both in the request context. It does not enforce
// authentication.
func LoadIdentity(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, src := session.ID(r)
			if src == session.SourceNone {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), sourceKey, src)
			user, err := resolver.Current(ctx, id)
			if err != nil {
				// Treat as unauthenticated; the store may be briefly unavailable.
				slog.Warn("session lookup failed", "error", err)
			}
			if user != nil {
				ctx = context.WithValue(ctx, userKey, user)
				ctx = context.WithValue(ctx, sessionIDKey, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a signed-in user with 401.
// Must be applied after LoadIdentity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromCtx(r.Context()) == nil {
			WriteProblem(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromCtx returns the signed-in user, or nil.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// SessionIDFromCtx returns the id of the signed-in session, or "".
func SessionIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// SourceFromCtx reports how the request presented its session.
func SourceFromCtx(ctx context.Context) session.Source {
	src, _ := ctx.Value(sourceKey).(session.Source)
	return src
}

// WithUser returns ctx carrying user and its session id.
func WithUser(ctx context.Context, user *models.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}
