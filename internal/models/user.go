// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures stored per user and the core
// types used throughout the application.
package models

import (
	"strings"
	"time"
)

// Provider identifies how a user authenticates.
type Provider string

const (
	ProviderPassword  Provider = "password"
	ProviderFederated Provider = "federated"
)

// User is an authenticated account. Federated users have no password hash
// and are matched by the identity provider's subject.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize the hash
	Subject      string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	PhotoURL     *string   `json:"photoURL"`
	Provider     Provider  `json:"provider"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DefaultDisplayName derives a display name from the local part of an email.
func DefaultDisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
