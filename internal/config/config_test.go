// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var envVars = []string{
	"APP_HOST", "APP_PORT", "APP_ENV",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	"VALKEY_HOST", "VALKEY_PORT", "VALKEY_PASSWORD",
	"JWKS_URL", "JWT_ISSUER", "JWT_AUDIENCE", "CORS_ORIGINS",
	"S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET",
	"MAX_UPLOAD_BYTES", "AUTH_RATE_LIMIT",
}

// clearEnv empties every variable Load reads and moves into a directory
// without a .env file. envOrDefault treats empty the same as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// TestLoad_Defaults verifies that Load returns sensible development defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	defaults := map[string]string{
		"Host":       "0.0.0.0",
		"Port":       "8080",
		"Env":        "development",
		"DBHost":     "localhost",
		"DBPort":     "5432",
		"DBUser":     "tasknest",
		"DBPassword": "changeme",
		"DBName":     "tasknest",
		"ValkeyHost": "localhost",
		"ValkeyPort": "6379",
		"S3Region":   "us-east-1",
		"S3Bucket":   "tasknest",
	}
	v := reflect.ValueOf(*cfg)
	for field, want := range defaults {
		if got := v.FieldByName(field).String(); got != want {
			t.Errorf("%s: got %q, want %q", field, got, want)
		}
	}

	if cfg.MaxUploadBytes != 100<<20 {
		t.Errorf("MaxUploadBytes: got %d", cfg.MaxUploadBytes)
	}
	if cfg.AuthRateLimit != 10 {
		t.Errorf("AuthRateLimit: got %d", cfg.AuthRateLimit)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"http://localhost:5173"}) {
		t.Errorf("CORSOrigins: got %v", cfg.CORSOrigins)
	}
	if cfg.HasStorage() {
		t.Error("storage should be off by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9000")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_ACCESS_KEY", "key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("Addr: got %q", cfg.Addr())
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("CORSOrigins: got %v", cfg.CORSOrigins)
	}
	if cfg.MaxUploadBytes != 2048 {
		t.Errorf("MaxUploadBytes: got %d", cfg.MaxUploadBytes)
	}
	if !cfg.HasStorage() {
		t.Error("expected storage to be configured")
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_RATE_LIMIT", "lots")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AUTH_RATE_LIMIT") {
		t.Errorf("expected AUTH_RATE_LIMIT error, got %v", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even
	// when empty, so unset the ones the file provides.
	os.Unsetenv("APP_PORT")
	os.Unsetenv("POSTGRES_DB")
	dir, _ := os.Getwd()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_PORT=7000\nPOSTGRES_DB=fromfile\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("APP_PORT")
		os.Unsetenv("POSTGRES_DB")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "7000" || cfg.DBName != "fromfile" {
		t.Errorf("got port %q db %q, want values from .env", cfg.Port, cfg.DBName)
	}
}

func TestLoad_ProductionRequiresPassword(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for default password in production")
	}
	if !strings.Contains(err.Error(), "POSTGRES_PASSWORD") {
		t.Errorf("error should mention POSTGRES_PASSWORD, got: %v", err)
	}
}

func TestLoad_ProductionRequiresAudience(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("JWKS_URL", "https://idp.example/jwks")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT_AUDIENCE")
	}

	t.Setenv("JWT_AUDIENCE", "tasknest")
	if _, err := Load(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "1", DBName: "d",
	}
	want := "postgres://u:p@h:1/d?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN: got %q, want %q", got, want)
	}
}

func TestEnvModes(t *testing.T) {
	tests := []struct {
		env     string
		dev     bool
		testing bool
	}{
		{"development", true, false},
		{"testing", false, true},
		{"production", false, false},
	}
	for _, tt := range tests {
		cfg := &Config{Env: tt.env}
		if cfg.IsDev() != tt.dev || cfg.IsTesting() != tt.testing {
			t.Errorf("%s: IsDev=%v IsTesting=%v", tt.env, cfg.IsDev(), cfg.IsTesting())
		}
	}
}
