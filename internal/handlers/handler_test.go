// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for the handler
// tests: services over the in-memory store and a signed-in request context.
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/middleware"
	"tasknest/internal/models"
	"tasknest/internal/service"
)

const testUserID = "u1"

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const testSessionID = "sess-1"

type testEnv struct {
	svc     *service.Services
	encoder *blob.Encoder
	feed    *cache.LocalFeed
	streams *Streams
	mux     chi.Router
}

// signedIn injects a fixed user, standing in for LoadIdentity. The session
// id comes from X-Test-Session when set.
func signedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := &models.User{ID: testUserID, Email: "u1@example.com"}
		sessionID := r.Header.Get("X-Test-Session")
		if sessionID == "" {
			sessionID = testSessionID
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), user, sessionID)))
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	feed := cache.NewLocalFeed()
	store := docstore.NewMemory(feed)
	enc := blob.NewEncoder(nil, 1024)
	svc := service.New(store, nil, enc)
	clock := func() time.Time { return fixedNow }
	svc.Tasks.Now = clock
	svc.DocumentTypes.Now = clock
	svc.Sections.Now = clock

	tasks := NewTasks(svc.Categories, svc.Tasks)
	docs := NewDocuments(svc.DocumentTypes, enc)
	secs := NewSections(svc.Sections, enc.Limit())
	streams := NewStreams(svc, feed, 50*time.Millisecond)

	r := chi.NewRouter()
	r.Use(signedIn)
	r.Get("/categories", tasks.ListCategories)
	r.Post("/categories", tasks.CreateCategory)
	r.Get("/categories/stream", streams.Categories)
	r.Get("/settings/stream", streams.Settings)
	r.Put("/categories/{id}", tasks.UpdateCategory)
	r.Delete("/categories/{id}", tasks.DeleteCategory)
	r.Get("/tasks", tasks.ListTasks)
	r.Post("/tasks", tasks.CreateTask)
	r.Get("/tasks/view", tasks.TaskView)
	r.Get("/tasks/{id}", tasks.GetTask)
	r.Patch("/tasks/{id}", tasks.UpdateTask)
	r.Post("/tasks/{id}/toggle", tasks.ToggleTask)
	r.Put("/tasks/{id}/status", tasks.SetTaskStatus)
	r.Delete("/tasks/{id}", tasks.DeleteTask)
	r.Get("/document-types", docs.ListTypes)
	r.Post("/document-types", docs.CreateType)
	r.Get("/document-types/{id}", docs.GetType)
	r.Put("/document-types/{id}/notes", docs.UpdateNotes)
	r.Delete("/document-types/{id}", docs.DeleteType)
	r.Get("/document-types/{id}/records", docs.ListRecords)
	r.Post("/document-types/{id}/records", docs.AddRecord)
	r.Put("/document-types/{id}/records/{recordID}", docs.UpdateRecord)
	r.Delete("/document-types/{id}/records/{recordID}", docs.DeleteRecord)
	r.Post("/document-types/{id}/records/{recordID}/attachment", docs.AttachFile)
	r.Get("/documents", secs.List)
	r.Post("/documents", secs.Create)
	r.Get("/documents/{id}/form", secs.Form)
	r.Put("/documents/{id}/form", secs.SaveForm)
	r.Get("/documents/{id}/files", secs.ListFiles)
	r.Post("/documents/{id}/files", secs.UploadFiles)
	r.Delete("/documents/{id}/files/{year}/{fileName}", secs.DeleteFile)
	r.Get("/uploads/*", docs.Download)

	return &testEnv{svc: svc, encoder: enc, feed: feed, streams: streams, mux: r}
}

// do sends a request with an optional JSON body.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			buf, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			rd = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rr.Code, want, rr.Body.String())
	}
}
