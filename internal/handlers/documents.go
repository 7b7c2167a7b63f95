// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tasknest/internal/blob"
	"tasknest/internal/markdown"
	"tasknest/internal/models"
	"tasknest/internal/service"
	"tasknest/internal/view"
)

// uploadLinkTTL is how long a resolved attachment URL stays valid.
const uploadLinkTTL = 15 * time.Minute

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// Documents groups the document type, record and attachment handlers.
type Documents struct {
	types   *service.DocumentTypeService
	encoder *blob.Encoder
}

// NewDocuments creates the document handler group.
func NewDocuments(types *service.DocumentTypeService, encoder *blob.Encoder) *Documents {
	return &Documents{types: types, encoder: encoder}
}

// documentTypeJSON is a document type with rendered notes and expiry flags
// on its records.
type documentTypeJSON struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Notes     string            `json:"notes"`
	NotesHTML string            `json:"notesHtml,omitempty"`
	Records   []view.RecordView `json:"records"`
	CreatedAt time.Time         `json:"createdAt"`
}

func renderDocumentType(dt models.DocumentType, today string) documentTypeJSON {
	out := documentTypeJSON{
		ID:        dt.ID,
		Type:      dt.Type,
		Notes:     dt.Notes,
		Records:   view.Records(dt.Records, today),
		CreatedAt: dt.CreatedAt,
	}
	if dt.Notes != "" {
		html, err := markdown.ToHTML(dt.Notes)
		if err != nil {
			slog.Warn("render document notes", "type", dt.ID, "error", err)
		}
		out.NotesHTML = html
	}
	return out
}

func renderDocumentTypes(dts []models.DocumentType, today string) []documentTypeJSON {
	out := make([]documentTypeJSON, len(dts))
	for i, dt := range dts {
		out[i] = renderDocumentType(dt, today)
	}
	return out
}

// ListTypes returns the user's document types with their records.
func (h *Documents) ListTypes(w http.ResponseWriter, r *http.Request) {
	dts, err := h.types.List(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderDocumentTypes(dts, h.types.Today()))
}

// GetType returns one document type.
func (h *Documents) GetType(w http.ResponseWriter, r *http.Request) {
	dt, err := h.types.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderDocumentType(*dt, h.types.Today()))
}

// CreateType adds a document type.
func (h *Documents) CreateType(w http.ResponseWriter, r *http.Request) {
	var in service.DocumentTypeInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	dt, err := h.types.Create(r.Context(), userID(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderDocumentType(*dt, h.types.Today()))
}

// UpdateNotes replaces a document type's notes.
func (h *Documents) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.types.UpdateNotes(r.Context(), userID(r), chi.URLParam(r, "id"), req.Notes); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteType removes a document type and its records.
func (h *Documents) DeleteType(w http.ResponseWriter, r *http.Request) {
	if err := h.types.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRecords returns a type's records with their expiry flags.
func (h *Documents) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.types.Records(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// AddRecord appends a record.
func (h *Documents) AddRecord(w http.ResponseWriter, r *http.Request) {
	var in service.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.types.AddRecord(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view.RecordView{Record: *rec, Expired: view.IsExpired(*rec, h.types.Today())})
}

// UpdateRecord replaces a record's fields.
func (h *Documents) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var in service.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.types.UpdateRecord(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "recordID"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.RecordView{Record: *rec, Expired: view.IsExpired(*rec, h.types.Today())})
}

// DeleteRecord removes a record.
func (h *Documents) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.types.DeleteRecord(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "recordID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachFile stores the multipart "file" part as the record's attachment.
func (h *Documents) AttachFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.encoder.Limit()+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, models.Invalid("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, models.Invalid("file is required"))
		return
	}
	defer file.Close()

	rec, err := h.types.AttachFile(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "recordID"),
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.RecordView{Record: *rec, Expired: view.IsExpired(*rec, h.types.Today())})
}

// Download redirects an attachment link to a short-lived storage URL.
func (h *Documents) Download(w http.ResponseWriter, r *http.Request) {
	url, err := h.encoder.Resolve(r.Context(), userID(r), chi.URLParam(r, "*"), uploadLinkTTL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
