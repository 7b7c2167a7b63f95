// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package blob turns uploaded files into strings that can live inside a
// document: an inline data URL, or a link to an object in S3 storage when
// storage is configured.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxBytes caps a single source file before encoding.
const DefaultMaxBytes int64 = 100 << 20

var (
	// ErrTooLarge is returned for files over the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrForeignKey is returned when a key is outside the caller's namespace.
	ErrForeignKey = errors.New("attachment belongs to another user")
	// ErrNoStorage is returned when resolving links without object storage.
	ErrNoStorage = errors.New("object storage not configured")
)

// EncodeDataURL reads r fully and returns data:<type>;base64,<payload>.
// An empty contentType is sniffed from the content.
func EncodeDataURL(r io.Reader, contentType string, limit int64) (string, error) {
	data, err := readLimited(r, limit)
	if err != nil {
		return "", err
	}
	return dataURL(data, contentType), nil
}

func dataURL(data []byte, contentType string) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into its content type and bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data url is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return contentType, data, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// ObjectStore is the slice of the storage client the encoder needs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// LinkPrefix marks attachment links that point at object storage. The
// HTTP layer resolves them to presigned URLs on access.
const LinkPrefix = "/api/uploads/"

// Encoder stores attachments. With a nil store every file becomes a data URL.
type Encoder struct {
	store ObjectStore
	limit int64
}

// NewEncoder creates an encoder. store may be nil.
func NewEncoder(store ObjectStore, limit int64) *Encoder {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	return &Encoder{store: store, limit: limit}
}

// Limit returns the per-file size limit.
func (e *Encoder) Limit() int64 {
	return e.limit
}

// Encode stores a user's file and returns the string to keep in the
// document: an upload link or a data URL.
func (e *Encoder) Encode(ctx context.Context, userID, filename, contentType string, r io.Reader) (string, error) {
	data, err := readLimited(r, e.limit)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(filename))
	}
	if e.store == nil {
		return dataURL(data, contentType), nil
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := objectKey(userID, filename)
	if err := e.store.Upload(ctx, key, contentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return LinkPrefix + key, nil
}

// Release deletes the user's stored object behind link, if any. Data URLs
// and links outside the user's namespace are ignored.
func (e *Encoder) Release(ctx context.Context, userID, link string) error {
	key, ok := KeyFromLink(link)
	if !ok || e.store == nil || !owns(userID, key) {
		return nil
	}
	return e.store.Delete(ctx, key)
}

// Resolve returns a presigned URL for the object key if it belongs to
// userID.
func (e *Encoder) Resolve(ctx context.Context, userID, key string, expires time.Duration) (string, error) {
	if e.store == nil {
		return "", ErrNoStorage
	}
	if !owns(userID, key) {
		return "", fmt.Errorf("resolve %q: %w", key, ErrForeignKey)
	}
	return e.store.PresignedURL(ctx, key, expires)
}

// KeyFromLink extracts the object key from an upload link.
func KeyFromLink(link string) (string, bool) {
	key, ok := strings.CutPrefix(link, LinkPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func owns(userID, key string) bool {
	return userID != "" && strings.HasPrefix(key, userPrefix(userID)) && !strings.Contains(key, "..")
}

func userPrefix(userID string) string {
	return "users/" + userID + "/"
}

// objectKey namespaces objects per user and keeps the original extension.
func objectKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	return userPrefix(userID) + time.Now().Format("2006/01/") + uuid.NewString() + ext
}
