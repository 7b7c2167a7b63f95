// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package identity signs users up, in and out. Password accounts live in
// PostgreSQL, federated accounts are vouched for by a signed ID token, and
// both end in a Valkey session. Interested parties learn about sign-in and
// sign-out through OnAuthChange.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"tasknest/internal/models"
	"tasknest/internal/session"
)

// MinPasswordLength matches what the sign-up form enforces.
const MinPasswordLength = 6

// Users is the account storage the service needs.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, email, password, displayName string) (*models.User, error)
	UpsertFederated(ctx context.Context, subject, email, displayName string, photoURL *string) (*models.User, error)
	CheckPassword(user *models.User, password string) bool
}

// Sessions is the session storage the service needs.
type Sessions interface {
	Create(ctx context.Context, w http.ResponseWriter, data *session.Data) (string, error)
	Lookup(ctx context.Context, id string) (*session.Data, error)
	Delete(ctx context.Context, id string) error
}

// Change describes a sign-in (User set) or sign-out (User nil) of one
// session.
type Change struct {
	UserID    string
	SessionID string
	User      *models.User
}

// SessionTopic names the change-feed topic announcing that a session ended.
// Live streams opened by the session listen on it.
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}

// Result is a successful sign-in: the user and the session token that
// authenticates later requests.
type Result struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Service implements the identity operations.
type Service struct {
	users    Users
	sessions Sessions
	verifier Verifier

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Change)
}

// New creates the service. verifier may be nil, which disables federated
// sign-in.
func New(users Users, sessions Sessions, verifier Verifier) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		verifier:  verifier,
		listeners: make(map[int]func(Change)),
	}
}

// FederatedEnabled reports whether federated sign-in is configured.
func (s *Service) FederatedEnabled() bool {
	return s.verifier != nil
}

// SignUp creates a password account and signs it in. An empty display name
// becomes the local part of the email.
func (s *Service) SignUp(ctx context.Context, w http.ResponseWriter, email, password, displayName string) (*Result, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	err := validation.Errors{
		"email":       validation.Validate(email, validation.Required, is.EmailFormat),
		"password":    validation.Validate(password, validation.Required, validation.RuneLength(MinPasswordLength, 128)),
		"displayName": validation.Validate(displayName, validation.RuneLength(0, 100)),
	}.Filter()
	if err != nil {
		return nil, models.Invalid("%v", err)
	}
	if displayName == "" {
		displayName = models.DefaultDisplayName(email)
	}

	user, err := s.users.Create(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	slog.Info("user signed up", "user", user.ID)
	return s.start(ctx, w, user)
}

// SignIn checks a password and opens a session.
func (s *Service) SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (*Result, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !s.users.CheckPassword(user, password) {
		return nil, fmt.Errorf("invalid email or password: %w", models.ErrUnauthorized)
	}
	return s.start(ctx, w, user)
}

// SignInFederated verifies an ID token, creates or refreshes the matching
// account and opens a session.
func (s *Service) SignInFederated(ctx context.Context, w http.ResponseWriter, idToken string) (*Result, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("federated sign-in is not configured: %w", models.ErrUnauthorized)
	}
	claims, err := s.verifier.Verify(idToken)
	if err != nil {
		return nil, err
	}

	email := normalizeEmail(claims.Email)
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = models.DefaultDisplayName(email)
	}
	var photo *string
	if claims.Picture != "" {
		photo = &claims.Picture
	}

	user, err := s.users.UpsertFederated(ctx, claims.Subject, email, name, photo)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, w, user)
}

// SignOut ends a session. Unknown sessions are not an error.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	data, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if data != nil {
		s.notify(Change{UserID: data.UserID, SessionID: sessionID})
	}
	return nil
}

// Current resolves a session id to its user. Returns nil when the session
// is missing or the account was removed.
func (s *Service) Current(ctx context.Context, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, nil
	}
	data, err := s.sessions.Lookup(ctx, sessionID)
	if err != nil || data == nil {
		return nil, err
	}
	return s.users.FindByID(ctx, data.UserID)
}

// OnAuthChange registers fn for sign-in and sign-out events and returns
// a function that removes it.
func (s *Service) OnAuthChange(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Service) start(ctx context.Context, w http.ResponseWriter, user *models.User) (*Result, error) {
	token, err := s.sessions.Create(ctx, w, &session.Data{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
	if err != nil {
		return nil, err
	}
	s.notify(Change{UserID: user.ID, SessionID: token, User: user})
	return &Result{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
