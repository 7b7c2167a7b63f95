// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up the HTTP routes and middleware chains for the
// tasknest API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"tasknest/internal/handlers"
	"tasknest/internal/middleware"
)

// Deps holds everything the route table needs.
type Deps struct {
	Identity  middleware.Resolver
	Auth      *handlers.Auth
	Tasks     *handlers.Tasks
	Documents *handlers.Documents
	Sections  *handlers.Sections
	Settings  *handlers.Settings
	Streams   *handlers.Streams

	// AuthLimiter throttles the sign-in and sign-up endpoints. Nil disables it.
	AuthLimiter *middleware.RateLimiter

	// CORSOrigins lists the origins allowed to call the API with credentials.
	CORSOrigins   []string
	SecureCookies bool
}

// New creates the configured Chi router.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(middleware.LoadIdentity(d.Identity))

	// Health check, no auth and no CSRF.
	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRF(d.SecureCookies))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/config", d.Auth.Config)
			r.Get("/me", d.Auth.Me)
			r.Post("/signout", d.Auth.SignOut)

			r.Group(func(r chi.Router) {
				if d.AuthLimiter != nil {
					r.Use(d.AuthLimiter.Middleware)
				}
				r.Post("/signup", d.Auth.SignUp)
				r.Post("/signin", d.Auth.SignIn)
				r.Post("/federated", d.Auth.SignInFederated)
			})
		})

		// The theme works before sign-in, backed by a cookie.
		r.Get("/settings", d.Settings.Get)
		r.Put("/settings", d.Settings.Save)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/settings/stream", d.Streams.Settings)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", d.Tasks.ListCategories)
				r.Post("/", d.Tasks.CreateCategory)
				r.Get("/stream", d.Streams.Categories)
				r.Put("/{id}", d.Tasks.UpdateCategory)
				r.Delete("/{id}", d.Tasks.DeleteCategory)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", d.Tasks.ListTasks)
				r.Post("/", d.Tasks.CreateTask)
				r.Get("/view", d.Tasks.TaskView)
				r.Get("/stream", d.Streams.Tasks)
				r.Get("/{id}", d.Tasks.GetTask)
				r.Patch("/{id}", d.Tasks.UpdateTask)
				r.Post("/{id}/toggle", d.Tasks.ToggleTask)
				r.Put("/{id}/status", d.Tasks.SetTaskStatus)
				r.Delete("/{id}", d.Tasks.DeleteTask)
			})

			r.Route("/document-types", func(r chi.Router) {
				r.Get("/", d.Documents.ListTypes)
				r.Post("/", d.Documents.CreateType)
				r.Get("/stream", d.Streams.DocumentTypes)
				r.Get("/{id}", d.Documents.GetType)
				r.Put("/{id}/notes", d.Documents.UpdateNotes)
				r.Delete("/{id}", d.Documents.DeleteType)
				r.Get("/{id}/records", d.Documents.ListRecords)
				r.Post("/{id}/records", d.Documents.AddRecord)
				r.Put("/{id}/records/{recordID}", d.Documents.UpdateRecord)
				r.Delete("/{id}/records/{recordID}", d.Documents.DeleteRecord)
				r.Post("/{id}/records/{recordID}/attachment", d.Documents.AttachFile)
			})

			// Legacy document sections.
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", d.Sections.List)
				r.Post("/", d.Sections.Create)
				r.Get("/stream", d.Streams.Sections)
				r.Put("/{id}", d.Sections.Update)
				r.Delete("/{id}", d.Sections.Delete)
				r.Get("/{id}/form", d.Sections.Form)
				r.Put("/{id}/form", d.Sections.SaveForm)
				r.Get("/{id}/files", d.Sections.ListFiles)
				r.Post("/{id}/files", d.Sections.UploadFiles)
				r.Delete("/{id}/files/{year}/{fileName}", d.Sections.DeleteFile)
			})

			r.Get("/uploads/*", d.Documents.Download)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
