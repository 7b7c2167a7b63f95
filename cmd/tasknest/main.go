// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the tasknest API server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/config"
	"tasknest/internal/database"
	"tasknest/internal/docstore"
	"tasknest/internal/handlers"
	"tasknest/internal/identity"
	"tasknest/internal/middleware"
	"tasknest/internal/router"
	"tasknest/internal/service"
	"tasknest/internal/session"
	"tasknest/internal/storage"
	"tasknest/internal/store"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON elsewhere.
	var logHandler slog.Handler
	if cfg.IsDev() {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(logHandler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL. Accounts always live here.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed the demo account (no-op if users exist).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (sessions, change feed, snapshot cache).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	// In non-development environments, mark session cookies as Secure (HTTPS-only).
	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	// Per-user collections. Testing mode keeps them in memory.
	// The change feed also announces session sign-outs to every instance.
	var (
		feed      docstore.Feed
		docs      docstore.Store
		snapshots *cache.SnapshotCache
	)
	if cfg.IsTesting() {
		feed = cache.NewLocalFeed()
		docs = docstore.NewMemory(feed)
		slog.Warn("using in-memory document store")
	} else {
		feed = cache.NewValkeyFeed(valkeyClient)
		docs = docstore.NewPostgres(db, feed)
		snapshots = cache.NewSnapshotCache(valkeyClient, cache.DefaultSnapshotTTL)
	}

	// Connect to S3-compatible object storage (optional; attachments are
	// stored inline as data URLs without it).
	var objects blob.ObjectStore
	if cfg.HasStorage() {
		client, err := storage.New(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
		if err != nil {
			slog.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		objects = client
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured, attachments stored inline")
	}
	encoder := blob.NewEncoder(objects, cfg.MaxUploadBytes)

	services := service.New(docs, snapshots, encoder)

	// Federated sign-in is optional.
	var verifier identity.Verifier
	if cfg.JWKSURL != "" {
		jwks, err := identity.NewJWKSVerifier(context.Background(), cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			slog.Error("failed to load jwks", "error", err)
			os.Exit(1)
		}
		verifier = jwks
	}
	ids := identity.New(store.NewUserStore(db), sessionStore, verifier)

	// Signing out ends the live streams of that session on every instance.
	stopAuthWatch := ids.OnAuthChange(func(c identity.Change) {
		if c.User != nil {
			return
		}
		if err := feed.Publish(context.Background(), identity.SessionTopic(c.SessionID)); err != nil {
			slog.Warn("failed to announce sign-out", "user", c.UserID, "error", err)
		}
	})
	defer stopAuthWatch()

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
	defer authLimiter.Stop()

	streams := handlers.NewStreams(services, feed, handlers.DefaultKeepalive)
	r := router.New(router.Deps{
		Identity:      ids,
		Auth:          handlers.NewAuth(ids),
		Tasks:         handlers.NewTasks(services.Categories, services.Tasks),
		Documents:     handlers.NewDocuments(services.DocumentTypes, encoder),
		Sections:      handlers.NewSections(services.Sections, encoder.Limit()),
		Settings:      handlers.NewSettings(services.Settings, secureCookies),
		Streams:       streams,
		AuthLimiter:   authLimiter,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: secureCookies,
	})

	// WriteTimeout is left to the handlers: event streams clear their own
	// deadline and uploads may be large. ReadHeaderTimeout bounds slow clients.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Event streams never finish on their own. End them, then give regular
	// requests up to 30 seconds.
	streams.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("forcing remaining connections closed", "error", err)
		srv.Close()
	}

	slog.Info("server stopped")
}
