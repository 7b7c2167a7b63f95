// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"

	"tasknest/internal/identity"
	"tasknest/internal/middleware"
	"tasknest/internal/session"
)

// Authenticator is the identity service as the auth handlers use it.
type Authenticator interface {
	SignUp(ctx context.Context, w http.ResponseWriter, email, password, displayName string) (*identity.Result, error)
	SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (*identity.Result, error)
	SignInFederated(ctx context.Context, w http.ResponseWriter, idToken string) (*identity.Result, error)
	SignOut(ctx context.Context, sessionID string) error
	FederatedEnabled() bool
}

// Auth groups the sign-up, sign-in and sign-out handlers.
type Auth struct {
	ids Authenticator
}

// NewAuth creates the auth handler group.
func NewAuth(ids Authenticator) *Auth {
	return &Auth{ids: ids}
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedRequest struct {
	IDToken string `json:"idToken"`
}

// SignUp creates a password account and signs it in.
func (a *Auth) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := a.ids.SignUp(r.Context(), w, req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SignIn checks a password and opens a session.
func (a *Auth) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := a.ids.SignIn(r.Context(), w, req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SignInFederated exchanges an identity provider token for a session.
func (a *Auth) SignInFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := a.ids.SignInFederated(r.Context(), w, req.IDToken)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SignOut ends the current session and expires the cookie.
func (a *Auth) SignOut(w http.ResponseWriter, r *http.Request) {
	if id := middleware.SessionIDFromCtx(r.Context()); id != "" {
		if err := a.ids.SignOut(r.Context(), id); err != nil {
			respondError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user.
func (a *Auth) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		middleware.WriteProblem(w, http.StatusUnauthorized, "sign in required")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Config tells the client which sign-in methods are available.
func (a *Auth) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"password":  true,
		"federated": a.ids.FederatedEnabled(),
	})
}
