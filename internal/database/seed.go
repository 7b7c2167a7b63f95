// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// DemoEmail and DemoPassword sign in to the development account.
const (
	DemoEmail    = "demo@tasknest.local"
	DemoPassword = "demo1234"
)

// Seed populates the database with initial development data.
// It creates a demo password account if no users exist. The account's
// collections start empty; the defaults appear on first read.
func Seed(db *sql.DB) error {
	// Check if any users exist already.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (email, password_hash, display_name, provider)
		VALUES ($1, $2, $3, 'password')
	`, DemoEmail, string(hash), "Demo")
	if err != nil {
		return fmt.Errorf("seed insert demo user: %w", err)
	}

	slog.Info("database seeded with demo user",
		"email", DemoEmail,
		"password", DemoPassword,
	)

	return nil
}
