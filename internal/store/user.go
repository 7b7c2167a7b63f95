// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store provides relational database access. Per-user documents
// live in the docstore package; this package holds the account table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"tasknest/internal/models"
)

// UserStore handles all user-related database operations.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, COALESCE(password_hash, ''), display_name, photo_url, provider, COALESCE(subject, ''), created_at`

func scanUser(scanner interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := scanner.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.PhotoURL, &u.Provider, &u.Subject, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// FindByEmail retrieves a user by their email address. Returns nil if not found.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.findOne(ctx, "email = $1", email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// FindByID retrieves a user by id. Returns nil if not found.
func (s *UserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.findOne(ctx, "id = $1::uuid", id)
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Create inserts a password user with a bcrypt-hashed password. A taken
// email returns models.ErrConflict.
func (s *UserStore) Create(ctx context.Context, email, password, displayName string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, display_name, provider)
		VALUES ($1, $2, $3, 'password')
		RETURNING `+userColumns,
		email, string(hash), displayName))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create user %s: %w", email, models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UpsertFederated creates or refreshes the account for an identity
// provider subject. An existing password account with the same email is
// linked to the subject.
func (s *UserStore) UpsertFederated(ctx context.Context, subject, email, displayName string, photoURL *string) (*models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET email = $2, display_name = $3, photo_url = $4, updated_at = NOW()
		WHERE subject = $1
		RETURNING `+userColumns,
		subject, email, displayName, photoURL))
	if err == sql.ErrNoRows {
		u, err = scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO users (email, display_name, photo_url, provider, subject)
			VALUES ($1, $2, $3, 'federated', $4)
			ON CONFLICT (email) DO UPDATE SET subject = EXCLUDED.subject,
				photo_url = COALESCE(EXCLUDED.photo_url, users.photo_url), updated_at = NOW()
			RETURNING `+userColumns,
			email, displayName, photoURL, subject))
	}
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit federated user: %w", err)
	}
	return u, nil
}

// Delete removes a user and, through the foreign key, all their entries.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func (s *UserStore) CheckPassword(user *models.User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
