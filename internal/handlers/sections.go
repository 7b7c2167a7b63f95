// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasknest/internal/models"
	"tasknest/internal/service"
)

// maxFilesPerUpload bounds one multi-file upload request.
const maxFilesPerUpload = 20

// Sections groups the legacy document section handlers.
type Sections struct {
	sections *service.SectionService
	limit    int64
}

// NewSections creates the section handler group. limit is the per-file
// upload limit.
func NewSections(sections *service.SectionService, limit int64) *Sections {
	return &Sections{sections: sections, limit: limit}
}

// List returns the default and custom sections.
func (h *Sections) List(w http.ResponseWriter, r *http.Request) {
	secs, err := h.sections.List(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, secs)
}

// Create adds a custom section.
func (h *Sections) Create(w http.ResponseWriter, r *http.Request) {
	var in service.SectionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sec, err := h.sections.Create(r.Context(), userID(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sec)
}

// Update renames a custom section or changes its icon.
func (h *Sections) Update(w http.ResponseWriter, r *http.Request) {
	var in service.SectionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	sec, err := h.sections.Update(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

// Delete removes a custom section with its form and files.
func (h *Sections) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sections.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Form returns the section's saved form.
func (h *Sections) Form(w http.ResponseWriter, r *http.Request) {
	form, err := h.sections.Form(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// SaveForm merges the posted form into the section.
func (h *Sections) SaveForm(w http.ResponseWriter, r *http.Request) {
	var form models.SectionForm
	if err := decodeJSON(w, r, &form); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.sections.SaveForm(r.Context(), userID(r), chi.URLParam(r, "id"), form); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFiles returns the section's files, or one year's when the year query
// parameter is set.
func (h *Sections) ListFiles(w http.ResponseWriter, r *http.Request) {
	uid, id := userID(r), chi.URLParam(r, "id")

	if y := r.URL.Query().Get("year"); y != "" {
		year, err := yearParam(y)
		if err != nil {
			respondError(w, r, err)
			return
		}
		files, err := h.sections.ListFilesByYear(r.Context(), uid, id, year)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, service.FileListing{Files: files, Years: []int{year}})
		return
	}

	listing, err := h.sections.ListFiles(r.Context(), uid, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// UploadFiles stores every multipart "files" part under the posted year.
// Files fail individually; the response reports both counts.
func (h *Sections) UploadFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limit*maxFilesPerUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, models.Invalid("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	year := 0
	if y := r.FormValue("year"); y != "" {
		var err error
		if year, err = yearParam(y); err != nil {
			respondError(w, r, err)
			return
		}
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, r, models.Invalid("files: at least one file is required"))
		return
	}
	if len(headers) > maxFilesPerUpload {
		respondError(w, r, models.Invalid("files: at most %d files per upload", maxFilesPerUpload))
		return
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, r, err)
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{
			Name: fh.Filename,
			Type: fh.Header.Get("Content-Type"),
			Size: fh.Size,
			Body: f,
		})
	}

	res, err := h.sections.UploadFiles(r.Context(), userID(r), chi.URLParam(r, "id"), year, uploads)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Uploaded == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// DeleteFile removes one uploaded file.
func (h *Sections) DeleteFile(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(chi.URLParam(r, "year"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.sections.DeleteFile(r.Context(), userID(r), chi.URLParam(r, "id"), year, chi.URLParam(r, "fileName")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
