// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the HTTP routing configuration, middleware
// chains, and the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/handlers"
	"tasknest/internal/identity"
	"tasknest/internal/middleware"
	"tasknest/internal/models"
	"tasknest/internal/service"
	"tasknest/internal/session"
)

// tokenResolver signs in requests presenting the "good" session id.
type tokenResolver struct{}

func (tokenResolver) Current(_ context.Context, id string) (*models.User, error) {
	if id == "good" {
		return &models.User{ID: "u1", Email: "u1@example.com"}, nil
	}
	return nil, nil
}

// noAuth is an authenticator that rejects everything.
type noAuth struct{}

func (noAuth) SignUp(context.Context, http.ResponseWriter, string, string, string) (*identity.Result, error) {
	return nil, models.ErrUnauthorized
}
func (noAuth) SignIn(context.Context, http.ResponseWriter, string, string) (*identity.Result, error) {
	return nil, models.ErrUnauthorized
}
func (noAuth) SignInFederated(context.Context, http.ResponseWriter, string) (*identity.Result, error) {
	return nil, models.ErrUnauthorized
}
func (noAuth) SignOut(context.Context, string) error { return nil }
func (noAuth) FederatedEnabled() bool              { return false }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := docstore.NewMemory(cache.NewLocalFeed())
	enc := blob.NewEncoder(nil, 0)
	svc := service.New(store, nil, enc)

	limiter := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)

	return New(Deps{
		Identity:    tokenResolver{},
		Auth:        handlers.NewAuth(noAuth{}),
		Tasks:       handlers.NewTasks(svc.Categories, svc.Tasks),
		Documents:   handlers.NewDocuments(svc.DocumentTypes, enc),
		Sections:    handlers.NewSections(svc.Sections, enc.Limit()),
		Settings:    handlers.NewSettings(svc.Settings, false),
		Streams:     handlers.NewStreams(svc, nil, 0),
		AuthLimiter: limiter,
		CORSOrigins: []string{"http://localhost:5173"},
	})
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	healthHandler(w, r)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("content-type: got %q, want %q", ct, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field: got %q, want %q", body["status"], "ok")
	}
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   string
		want   int
	}{
		{"health", "GET", "/health", "", "", http.StatusOK},
		{"anonymous tasks", "GET", "/api/tasks", "", "", http.StatusUnauthorized},
		{"bad token", "GET", "/api/tasks", "", "Bearer bad", http.StatusUnauthorized},
		{"bearer tasks", "GET", "/api/tasks", "", "Bearer good", http.StatusOK},
		{"bearer create", "POST", "/api/tasks", `{"text":"x"}`, "Bearer good", http.StatusCreated},
		{"categories", "GET", "/api/categories", "", "Bearer good", http.StatusOK},
		{"document types", "GET", "/api/document-types", "", "Bearer good", http.StatusOK},
		{"sections", "GET", "/api/documents", "", "Bearer good", http.StatusOK},
		{"anonymous settings", "GET", "/api/settings", "", "", http.StatusOK},
		{"auth config", "GET", "/api/auth/config", "", "", http.StatusOK},
		{"me anonymous", "GET", "/api/auth/me", "", "", http.StatusUnauthorized},
		{"unknown route", "GET", "/api/nope", "", "Bearer good", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("%s %s: got %d, want %d (%s)", tt.method, tt.path, rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCookieSessionNeedsCSRF(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/tasks", strings.NewReader(`{"text":"x"}`))
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "good"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("without token: got %d, want 403", rr.Code)
	}

	req = httptest.NewRequest("POST", "/api/tasks", strings.NewReader(`{"text":"x"}`))
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "good"})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "tok"})
	req.Header.Set(middleware.CSRFHeaderName, "tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Errorf("with token: got %d, want 201 (%s)", rr.Code, rr.Body.String())
	}
}

func TestAuthRateLimit(t *testing.T) {
	h := newTestRouter(t)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/api/auth/signin", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
		req.Header.Set("Authorization", "Bearer none")
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third attempt: got %d, want 429", last)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin: got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials: got %q", got)
	}
}

func TestSecurityHeadersOnAPI(t *testing.T) {
	h := newTestRouter(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}
