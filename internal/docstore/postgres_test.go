package docstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"tasknest/internal/cache"
	"tasknest/internal/database"
	"tasknest/internal/models"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "tasknest")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "tasknest")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

// testPostgres connects, migrates and creates a throwaway user whose
// entries are removed with it.
func testPostgres(t *testing.T) (*Postgres, string) {
	t.Helper()

	db, err := database.Connect(testDSN())
	if err != nil {
		t.Skipf("skipping: DB not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var userID string
	err = db.QueryRow(`
		INSERT INTO users (email, display_name) VALUES ('docstore-' || gen_random_uuid() || '@test.local', 'docstore')
		RETURNING id
	`).Scan(&userID)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	t.Cleanup(func() { cleanupUser(db, userID) })

	return NewPostgres(db, cache.NewLocalFeed()), userID
}

func cleanupUser(db *sql.DB, userID string) {
	db.Exec("DELETE FROM users WHERE id = $1", userID)
}

func TestPostgresCRUD(t *testing.T) {
	s, uid := testPostgres(t)
	ctx := context.Background()

	id, err := s.Create(ctx, uid, "tasks", "", map[string]any{"text": "Buy milk", "completed": false})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Update(ctx, uid, "tasks", id, map[string]any{"completed": true}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	d, err := s.Get(ctx, uid, "tasks", id)
	if err != nil || d == nil {
		t.Fatalf("Get: %v %v", d, err)
	}
	var task struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		Completed bool   `json:"completed"`
	}
	if err := d.Decode(&task); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if task.ID != id || task.Text != "Buy milk" || !task.Completed {
		t.Errorf("got %+v", task)
	}

	if _, err := s.Create(ctx, uid, "tasks", id, map[string]any{"text": "dup"}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate create: expected ErrConflict, got %v", err)
	}
	if err := s.Update(ctx, uid, "tasks", "missing", map[string]any{"x": 1}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("update missing: expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, uid, "tasks", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if d, _ := s.Get(ctx, uid, "tasks", id); d != nil {
		t.Error("expected nil after delete")
	}
}

func TestPostgresArrayOps(t *testing.T) {
	s, uid := testPostgres(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, uid, "documentsV2", "insurance", map[string]any{"type": "Insurance", "records": []any{}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, r := range []record{{"1", "Health"}, {"2", "Car"}, {"3", "Home"}} {
		if err := s.ArrayAppend(ctx, uid, "documentsV2", "insurance", "records", r); err != nil {
			t.Fatalf("ArrayAppend: %v", err)
		}
	}
	if err := s.ArrayReplace(ctx, uid, "documentsV2", "insurance", "records", "2", map[string]any{"name": "Car (renewed)"}); err != nil {
		t.Fatalf("ArrayReplace: %v", err)
	}
	if err := s.ArrayRemove(ctx, uid, "documentsV2", "insurance", "records", "1"); err != nil {
		t.Fatalf("ArrayRemove: %v", err)
	}

	d, _ := s.Get(ctx, uid, "documentsV2", "insurance")
	if got := recordNames(decodeType(t, d).Records); !equalStrings(got, []string{"Car (renewed)", "Home"}) {
		t.Errorf("records: got %v", got)
	}

	err := s.ArrayRemove(ctx, uid, "documentsV2", "insurance", "records", "404")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresConcurrentAppend(t *testing.T) {
	s, uid := testPostgres(t)
	ctx := context.Background()

	s.Create(ctx, uid, "documentsV2", "insurance", map[string]any{"type": "Insurance", "records": []any{}})

	var wg sync.WaitGroup
	for _, r := range []record{{"1", "Health"}, {"2", "Car"}} {
		wg.Add(1)
		go func(r record) {
			defer wg.Done()
			if err := s.ArrayAppend(ctx, uid, "documentsV2", "insurance", "records", r); err != nil {
				t.Errorf("ArrayAppend: %v", err)
			}
		}(r)
	}
	wg.Wait()

	d, _ := s.Get(ctx, uid, "documentsV2", "insurance")
	if got := decodeType(t, d).Records; len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}
}

func TestPostgresDeleteTree(t *testing.T) {
	s, uid := testPostgres(t)
	ctx := context.Background()

	s.Create(ctx, uid, "documents", "pan-info", map[string]any{"name": "Pan Info"})
	s.Create(ctx, uid, "documents/pan-info/years/2024/files", "a.pdf", map[string]any{"year": 2024})
	s.Create(ctx, uid, "documents/pan-info-2/years/2024/files", "b.pdf", map[string]any{"year": 2024})

	if err := s.DeleteTree(ctx, uid, "documents", "pan-info"); err != nil {
		t.Fatalf("DeleteTree: %v", err)
	}

	cols, err := s.ListCollections(ctx, uid, "documents/")
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if !equalStrings(cols, []string{"documents/pan-info-2/years/2024/files"}) {
		t.Errorf("remaining collections: got %v", cols)
	}
}
