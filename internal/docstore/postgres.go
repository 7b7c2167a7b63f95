// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tasknest/internal/models"
)

// Postgres stores documents as JSONB rows in the entries table.
type Postgres struct {
	db   *sql.DB
	feed Feed
}

// NewPostgres returns a Postgres-backed store announcing changes on feed.
func NewPostgres(db *sql.DB, feed Feed) *Postgres {
	return &Postgres{db: db, feed: feed}
}

const entryColumns = `id, data, created_at, updated_at`

// scanDoc scans a row into a Doc.
func scanDoc(scanner interface{ Scan(...any) error }) (*Doc, error) {
	var d Doc
	var data []byte
	if err := scanner.Scan(&d.ID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Data = json.RawMessage(data)
	return &d, nil
}

// publish announces a change. The write has already succeeded, so a feed
// failure is logged rather than returned.
func (s *Postgres) publish(ctx context.Context, userID, collection string) {
	if err := s.feed.Publish(ctx, Topic(userID, collection)); err != nil {
		slog.Warn("change feed publish failed", "user", userID, "collection", collection, "error", err)
	}
}

// List returns the collection ordered by creation time.
func (s *Postgres) List(ctx context.Context, userID, collection string) ([]Doc, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries
		WHERE user_id = $1 AND collection = $2
		ORDER BY created_at, id
	`, userID, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	items := []Doc{}
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

// Get retrieves a document by id. Returns nil if not found.
func (s *Postgres) Get(ctx context.Context, userID, collection, id string) (*Doc, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE user_id = $1 AND collection = $2 AND id = $3
	`, userID, collection, id)
	d, err := scanDoc(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return d, nil
}

// Create inserts a new document and returns its id.
func (s *Postgres) Create(ctx context.Context, userID, collection, id string, data any) (string, error) {
	body, err := encode(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	var created string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO entries (user_id, collection, id, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (user_id, collection, id) DO NOTHING
		RETURNING id
	`, userID, collection, id, string(body)).Scan(&created)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, models.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, userID, collection)
	return created, nil
}

// Set upserts a document, replacing or merging its body.
func (s *Postgres) Set(ctx context.Context, userID, collection, id string, data any, merge bool) error {
	body, err := encode(data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entries (user_id, collection, id, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (user_id, collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	if merge {
		query = `
		INSERT INTO entries (user_id, collection, id, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (user_id, collection, id)
		DO UPDATE SET data = entries.data || EXCLUDED.data, updated_at = NOW()`
	}

	if _, err := s.db.ExecContext(ctx, query, userID, collection, id, string(body)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, userID, collection)
	return nil
}

// Update merges fields into an existing document.
func (s *Postgres) Update(ctx context.Context, userID, collection, id string, fields map[string]any) error {
	body, err := encode(fields)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET data = data || $4::jsonb, updated_at = NOW()
		WHERE user_id = $1 AND collection = $2 AND id = $3
	`, userID, collection, id, string(body))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := expectRow(res, collection, id); err != nil {
		return err
	}

	s.publish(ctx, userID, collection)
	return nil
}

// Delete removes a document by id.
func (s *Postgres) Delete(ctx context.Context, userID, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM entries WHERE user_id = $1 AND collection = $2 AND id = $3
	`, userID, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	s.publish(ctx, userID, collection)
	return nil
}

// DeleteTree removes a document and all nested collections in one transaction.
func (s *Postgres) DeleteTree(ctx context.Context, userID, collection, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	nested, err := collectionsUnder(ctx, tx, userID, Path(collection, id)+"/")
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entries WHERE user_id = $1 AND collection = $2 AND id = $3
	`, userID, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entries WHERE user_id = $1 AND starts_with(collection, $2)
	`, userID, Path(collection, id)+"/"); err != nil {
		return fmt.Errorf("delete tree %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tree: %w", err)
	}

	s.publish(ctx, userID, collection)
	for _, c := range nested {
		s.publish(ctx, userID, c)
	}
	return nil
}

// ListCollections returns the distinct collection paths starting with prefix.
func (s *Postgres) ListCollections(ctx context.Context, userID, prefix string) ([]string, error) {
	return collectionsUnder(ctx, s.db, userID, prefix)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func collectionsUnder(ctx context.Context, q querier, userID, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT collection FROM entries
		WHERE user_id = $1 AND starts_with(collection, $2)
		ORDER BY collection
	`, userID, prefix)
	if err != nil {
		return nil, fmt.Errorf("list collections %s: %w", prefix, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ArrayAppend appends elem to the array at field in a single statement.
func (s *Postgres) ArrayAppend(ctx context.Context, userID, collection, id, field string, elem any) error {
	body, err := json.Marshal(elem)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			data = jsonb_set(data, ARRAY[$4::text],
				COALESCE(data -> $4::text, '[]'::jsonb) || jsonb_build_array($5::jsonb)),
			updated_at = NOW()
		WHERE user_id = $1 AND collection = $2 AND id = $3
	`, userID, collection, id, field, string(body))
	if err != nil {
		return fmt.Errorf("append %s/%s.%s: %w", collection, id, field, err)
	}
	if err := expectRow(res, collection, id); err != nil {
		return err
	}

	s.publish(ctx, userID, collection)
	return nil
}

// ArrayReplace merges elem into the element with a matching id, in place.
func (s *Postgres) ArrayReplace(ctx context.Context, userID, collection, id, field, elemID string, elem any) error {
	body, err := json.Marshal(elem)
	if err != nil {
		return fmt.Errorf("encode element: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			data = jsonb_set(data, ARRAY[$4::text], (
				SELECT COALESCE(jsonb_agg(
					CASE WHEN e ->> 'id' = $5 THEN e || $6::jsonb ELSE e END
					ORDER BY ord), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(data -> $4::text, '[]'::jsonb))
					WITH ORDINALITY AS t(e, ord)
			)),
			updated_at = NOW()
		WHERE user_id = $1 AND collection = $2 AND id = $3
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(data -> $4::text, '[]'::jsonb)) e
			WHERE e ->> 'id' = $5)
	`, userID, collection, id, field, elemID, string(body))
	if err != nil {
		return fmt.Errorf("replace %s/%s.%s[%s]: %w", collection, id, field, elemID, err)
	}
	if err := expectRow(res, collection, id+"."+field+"["+elemID+"]"); err != nil {
		return err
	}

	s.publish(ctx, userID, collection)
	return nil
}

// ArrayRemove drops the element with a matching id, keeping the others in order.
func (s *Postgres) ArrayRemove(ctx context.Context, userID, collection, id, field, elemID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			data = jsonb_set(data, ARRAY[$4::text], (
				SELECT COALESCE(jsonb_agg(e ORDER BY ord) FILTER (WHERE e ->> 'id' IS DISTINCT FROM $5), '[]'::jsonb)
				FROM jsonb_array_elements(COALESCE(data -> $4::text, '[]'::jsonb))
					WITH ORDINALITY AS t(e, ord)
			)),
			updated_at = NOW()
		WHERE user_id = $1 AND collection = $2 AND id = $3
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(data -> $4::text, '[]'::jsonb)) e
			WHERE e ->> 'id' = $5)
	`, userID, collection, id, field, elemID)
	if err != nil {
		return fmt.Errorf("remove %s/%s.%s[%s]: %w", collection, id, field, elemID, err)
	}
	if err := expectRow(res, collection, id+"."+field+"["+elemID+"]"); err != nil {
		return err
	}

	s.publish(ctx, userID, collection)
	return nil
}

// Subscribe streams collection snapshots driven by the change feed.
func (s *Postgres) Subscribe(ctx context.Context, userID, collection string) (*Subscription, error) {
	return subscribe(ctx, s.feed, Topic(userID, collection), func(ctx context.Context) ([]Doc, error) {
		return s.List(ctx, userID, collection)
	})
}

// expectRow maps an UPDATE that touched nothing to ErrNotFound.
func expectRow(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, models.ErrNotFound)
	}
	return nil
}
