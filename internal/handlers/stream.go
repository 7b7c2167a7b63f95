// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tasknest/internal/docstore"
	"tasknest/internal/identity"
	"tasknest/internal/middleware"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
	"tasknest/internal/service"
	"tasknest/internal/view"
)

// DefaultKeepalive is the interval between comment lines on idle streams.
const DefaultKeepalive = 25 * time.Second

// Streams serves live collections as server-sent events. Every change
// sends an "event: snapshot" carrying the whole reconciled collection.
type Streams struct {
	svc       *service.Services
	sessions  docstore.Feed
	keepalive time.Duration

	done     chan struct{}
	shutdown sync.Once
}

// NewStreams creates the stream handler group. Streams end when their
// session's identity.SessionTopic is published on sessions, which may be
// nil to disable that. A non-positive keepalive uses DefaultKeepalive.
func NewStreams(svc *service.Services, sessions docstore.Feed, keepalive time.Duration) *Streams {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Streams{svc: svc, sessions: sessions, keepalive: keepalive, done: make(chan struct{})}
}

// Shutdown ends every open stream with a "closed" event. http.Server's
// Shutdown does not wait for them otherwise.
func (s *Streams) Shutdown() {
	s.shutdown.Do(func() { close(s.done) })
}

type snapshot struct {
	Status reconcile.Status `json:"status"`
	Items  any              `json:"items"`
	View   *taskViewJSON    `json:"view,omitempty"`
}

// eventWriter writes SSE frames and flushes them through any wrappers.
type eventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func startEvents(w http.ResponseWriter) *eventWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	rc.SetWriteDeadline(time.Time{})
	rc.Flush()
	return &eventWriter{w: w, rc: rc}
}

func (e *eventWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (e *eventWriter) comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return err
	}
	return e.rc.Flush()
}

// sessionEnded returns a channel signalled when the request's session signs
// out on any instance. It is nil, and never ready, when there is no feed.
func (s *Streams) sessionEnded(r *http.Request) <-chan struct{} {
	sessionID := middleware.SessionIDFromCtx(r.Context())
	if s.sessions == nil || sessionID == "" {
		return nil
	}
	ended, err := s.sessions.Listen(r.Context(), identity.SessionTopic(sessionID))
	if err != nil {
		slog.Warn("session feed listen failed", "error", err)
		return nil
	}
	return ended
}

// serve streams updates until the client leaves or the stream is ended
// from the server side.
func serve[V any](s *Streams, w http.ResponseWriter, r *http.Request, updates <-chan V, render func(V) any) {
	ended := s.sessionEnded(r)

	ev := startEvents(w)
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			ev.send("closed", map[string]string{"reason": "server shutting down"})
			return
		case _, ok := <-ended:
			if !ok {
				// The feed went away; keep streaming without it.
				ended = nil
				continue
			}
			ev.send("closed", map[string]string{"reason": "signed out"})
			return
		case v, ok := <-updates:
			if !ok {
				ev.send("closed", map[string]string{"reason": "signed out"})
				return
			}
			if err := ev.send("snapshot", render(v)); err != nil {
				slog.Debug("stream write failed", "path", r.URL.Path, "error", err)
				return
			}
		case <-ticker.C:
			if err := ev.comment("keepalive"); err != nil {
				return
			}
		}
	}
}

// serveHandle streams a hub handle. The handle is closed when the user's
// subscriptions are dropped.
func serveHandle[T reconcile.Entry](s *Streams, w http.ResponseWriter, r *http.Request, h *reconcile.Handle[T], render func([]T) snapshot) {
	defer h.Release()

	serve(s, w, r, h.Updates(), func(items []T) any {
		snap := render(items)
		snap.Status = h.Status()
		return snap
	})
}

// Categories streams the merged categories.
func (s *Streams) Categories(w http.ResponseWriter, r *http.Request) {
	serveHandle(s, w, r, s.svc.Categories.Subscribe(userID(r)), func(items []models.Category) snapshot {
		return snapshot{Items: items}
	})
}

// Tasks streams the user's tasks. With a category query parameter each
// snapshot also carries the projected view for it.
func (s *Streams) Tasks(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	selected := r.URL.Query().Get("category")

	serveHandle(s, w, r, s.svc.Tasks.Subscribe(uid), func(items []models.Task) snapshot {
		snap := snapshot{Items: renderTasks(items)}
		if selected == "" {
			return snap
		}
		v := view.Project(items, selected)
		if cats, err := s.svc.Categories.List(r.Context(), uid); err == nil {
			for _, c := range cats {
				if c.ID == selected && selected != models.AllTasksCategoryID {
					v = view.ProjectFor(items, c)
				}
			}
		}
		rendered := renderView(v)
		snap.View = &rendered
		return snap
	})
}

// DocumentTypes streams the user's document types with expiry flags.
func (s *Streams) DocumentTypes(w http.ResponseWriter, r *http.Request) {
	serveHandle(s, w, r, s.svc.DocumentTypes.Subscribe(userID(r)), func(items []models.DocumentType) snapshot {
		return snapshot{Items: renderDocumentTypes(items, s.svc.DocumentTypes.Today())}
	})
}

// Sections streams the merged legacy sections.
func (s *Streams) Sections(w http.ResponseWriter, r *http.Request) {
	serveHandle(s, w, r, s.svc.Sections.Subscribe(userID(r)), func(items []models.Section) snapshot {
		return snapshot{Items: items}
	})
}

// Settings streams the user's preferences.
func (s *Streams) Settings(w http.ResponseWriter, r *http.Request) {
	updates, err := s.svc.Settings.Subscribe(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	serve(s, w, r, updates, func(settings models.Settings) any { return settings })
}
