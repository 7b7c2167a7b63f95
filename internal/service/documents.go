// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
	"tasknest/internal/slug"
	"tasknest/internal/view"
)

const recordsField = "records"

// DocumentTypeInput creates a document type.
type DocumentTypeInput struct {
	Type  string `json:"type"`
	Notes string `json:"notes"`
}

// RecordInput is the editable part of a record.
type RecordInput struct {
	Name         string  `json:"name"`
	Number       string  `json:"number"`
	Category     string  `json:"category"`
	IssuedOn     string  `json:"issuedOn"`
	ExpireAt     *string `json:"expireAt"`
	IssuedBy     string  `json:"issuedBy"`
	DownloadLink string  `json:"downloadLink"`
}

func (in *RecordInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Number = strings.TrimSpace(in.Number)
	in.IssuedOn = strings.TrimSpace(in.IssuedOn)
	in.ExpireAt = normalizeDate(in.ExpireAt)
}

func (in RecordInput) validate() error {
	return invalid(validation.Errors{
		"name":     validation.Validate(in.Name, validation.Required, validation.RuneLength(1, 200)),
		"issuedOn": validation.Validate(in.IssuedOn, dateRule),
		"expireAt": validation.Validate(derefOr(in.ExpireAt), dateRule),
	}.Filter())
}

func (in RecordInput) record(id string) models.Record {
	return models.Record{
		ID:           id,
		Name:         in.Name,
		Number:       in.Number,
		Category:     in.Category,
		IssuedOn:     in.IssuedOn,
		ExpireAt:     in.ExpireAt,
		IssuedBy:     in.IssuedBy,
		DownloadLink: in.DownloadLink,
	}
}

// recordIDs mints timestamp ids: unix milliseconds, with a numeric suffix
// when several are minted in the same millisecond.
type recordIDs struct {
	mu   sync.Mutex
	last int64
	n    int
}

func (g *recordIDs) next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms == g.last {
		g.n++
		return strconv.FormatInt(ms, 10) + "-" + strconv.Itoa(g.n)
	}
	g.last, g.n = ms, 0
	return strconv.FormatInt(ms, 10)
}

// DocumentTypeService manages document types and their embedded records.
// Record changes go through the store's atomic array operations, so two
// concurrent adds both land.
type DocumentTypeService struct {
	store     docstore.Store
	snapshots *cache.SnapshotCache
	encoder   *blob.Encoder
	hub       *reconcile.Hub[models.DocumentType]
	ids       recordIDs

	Now Clock
}

// NewDocumentTypeService creates the service and its subscription hub.
func NewDocumentTypeService(store docstore.Store, snapshots *cache.SnapshotCache, encoder *blob.Encoder) *DocumentTypeService {
	return &DocumentTypeService{
		store:     store,
		snapshots: snapshots,
		encoder:   encoder,
		hub: reconcile.NewHub[models.DocumentType]("document-types", nil,
			streamSource(store, CollDocumentTypes, fillRecords)),
		Now: time.Now,
	}
}

// fillRecords turns a missing records array into an empty one.
func fillRecords(items []models.DocumentType) {
	for i := range items {
		if items[i].Records == nil {
			items[i].Records = []models.Record{}
		}
	}
}

// List returns the user's document types in store order.
func (s *DocumentTypeService) List(ctx context.Context, userID string) ([]models.DocumentType, error) {
	return cachedList(ctx, s.snapshots, userID, kindDocumentTypes, func() ([]models.DocumentType, error) {
		docs, err := s.store.List(ctx, userID, CollDocumentTypes)
		if err != nil {
			return nil, err
		}
		items := decodeAll[models.DocumentType](CollDocumentTypes, docs)
		fillRecords(items)
		return reconcile.Reconcile(nil, items), nil
	})
}

// Get returns one document type with its records.
func (s *DocumentTypeService) Get(ctx context.Context, userID, id string) (*models.DocumentType, error) {
	d, err := s.store.Get(ctx, userID, CollDocumentTypes, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("document type %s: %w", id, models.ErrNotFound)
	}
	var dt models.DocumentType
	if err := d.Decode(&dt); err != nil {
		return nil, fmt.Errorf("decode document type %s: %w", id, err)
	}
	if dt.Records == nil {
		dt.Records = []models.Record{}
	}
	return &dt, nil
}

// Create adds a document type whose id is the slug of its name. Names that
// slug to an existing id, such as the same name in another case, conflict.
func (s *DocumentTypeService) Create(ctx context.Context, userID string, in DocumentTypeInput) (*models.DocumentType, error) {
	in.Type = strings.TrimSpace(in.Type)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Notes, validation.RuneLength(0, 10000)),
	)
	if err != nil {
		return nil, invalid(err)
	}
	id := slug.Generate(in.Type)
	if id == "" {
		return nil, models.Invalid("type: must contain a letter or digit.")
	}

	dt := models.DocumentType{
		ID:        id,
		Type:      in.Type,
		Notes:     in.Notes,
		Records:   []models.Record{},
		CreatedAt: s.Now().UTC(),
	}
	if _, err := s.store.Create(ctx, userID, CollDocumentTypes, id, dt); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("document type %q already exists: %w", in.Type, models.ErrConflict)
		}
		return nil, err
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return &dt, nil
}

// UpdateNotes replaces a document type's notes.
func (s *DocumentTypeService) UpdateNotes(ctx context.Context, userID, id, notes string) error {
	if err := validation.Validate(notes, validation.RuneLength(0, 10000)); err != nil {
		return invalid(err)
	}
	if err := s.store.Update(ctx, userID, CollDocumentTypes, id, map[string]any{"notes": notes}); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return nil
}

// Delete removes a document type with all its records and their stored
// attachments.
func (s *DocumentTypeService) Delete(ctx context.Context, userID, id string) error {
	dt, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTree(ctx, userID, CollDocumentTypes, id); err != nil {
		return err
	}
	for _, r := range dt.Records {
		s.release(ctx, userID, r.DownloadLink)
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return nil
}

// AddRecord appends a record to a document type.
func (s *DocumentTypeService) AddRecord(ctx context.Context, userID, typeID string, in RecordInput) (*models.Record, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	r := in.record(s.ids.next(s.Now()))
	if err := s.store.ArrayAppend(ctx, userID, CollDocumentTypes, typeID, recordsField, r); err != nil {
		return nil, err
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return &r, nil
}

// UpdateRecord replaces a record's fields in place. A replaced attachment
// is released.
func (s *DocumentTypeService) UpdateRecord(ctx context.Context, userID, typeID, recordID string, in RecordInput) (*models.Record, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.record(ctx, userID, typeID, recordID)
	if err != nil {
		return nil, err
	}

	r := in.record(recordID)
	if err := s.store.ArrayReplace(ctx, userID, CollDocumentTypes, typeID, recordsField, recordID, r); err != nil {
		return nil, err
	}
	if existing.DownloadLink != r.DownloadLink {
		s.release(ctx, userID, existing.DownloadLink)
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return &r, nil
}

// DeleteRecord removes a record and its stored attachment.
func (s *DocumentTypeService) DeleteRecord(ctx context.Context, userID, typeID, recordID string) error {
	existing, err := s.record(ctx, userID, typeID, recordID)
	if err != nil {
		return err
	}
	if err := s.store.ArrayRemove(ctx, userID, CollDocumentTypes, typeID, recordsField, recordID); err != nil {
		return err
	}
	s.release(ctx, userID, existing.DownloadLink)
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)
	return nil
}

// AttachFile stores a file for a record and points its download link at
// it, replacing any previous attachment.
func (s *DocumentTypeService) AttachFile(ctx context.Context, userID, typeID, recordID, filename, contentType string, r io.Reader) (*models.Record, error) {
	existing, err := s.record(ctx, userID, typeID, recordID)
	if err != nil {
		return nil, err
	}

	link, err := s.encoder.Encode(ctx, userID, filename, contentType, r)
	if err != nil {
		return nil, err
	}

	if err := s.store.ArrayReplace(ctx, userID, CollDocumentTypes, typeID, recordsField, recordID, map[string]any{"downloadLink": link}); err != nil {
		s.release(ctx, userID, link)
		return nil, err
	}
	if existing.DownloadLink != link {
		s.release(ctx, userID, existing.DownloadLink)
	}
	s.snapshots.Invalidate(ctx, userID, kindDocumentTypes)

	existing.DownloadLink = link
	return existing, nil
}

// Records returns a document type's records with their expiry flags, in
// storage order.
func (s *DocumentTypeService) Records(ctx context.Context, userID, typeID string) ([]view.RecordView, error) {
	dt, err := s.Get(ctx, userID, typeID)
	if err != nil {
		return nil, err
	}
	return view.Records(dt.Records, view.Today(s.Now)), nil
}

// Subscribe returns a live handle on the user's document types.
func (s *DocumentTypeService) Subscribe(userID string) *reconcile.Handle[models.DocumentType] {
	return s.hub.Acquire(userID)
}

// Today is the reference date for expiry flags.
func (s *DocumentTypeService) Today() string {
	return view.Today(s.Now)
}

func (s *DocumentTypeService) record(ctx context.Context, userID, typeID, recordID string) (*models.Record, error) {
	dt, err := s.Get(ctx, userID, typeID)
	if err != nil {
		return nil, err
	}
	for _, r := range dt.Records {
		if r.ID == recordID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("record %s in %s: %w", recordID, typeID, models.ErrNotFound)
}

// release deletes a stored attachment. The record is already gone, so a
// failure only leaves an orphaned object behind.
func (s *DocumentTypeService) release(ctx context.Context, userID, link string) {
	if err := s.encoder.Release(ctx, userID, link); err != nil {
		slog.Warn("attachment cleanup failed", "link", link, "error", err)
	}
}
