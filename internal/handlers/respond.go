// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON API and its live event streams.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"tasknest/internal/blob"
	"tasknest/internal/middleware"
	"tasknest/internal/models"
)

// maxJSONBody caps JSON request bodies. Files travel as multipart uploads.
const maxJSONBody = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON request body into v. Unknown fields are rejected
// so typos in partial updates surface as errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Invalid("request body is empty")
		}
		return models.Invalid("malformed JSON: %v", err)
	}
	return nil
}

// respondError maps domain errors to problem responses. Unexpected errors
// are logged and reported without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, models.ErrValidation):
		middleware.WriteProblem(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		middleware.WriteProblem(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrNotFound), errors.Is(err, blob.ErrForeignKey), errors.Is(err, blob.ErrNoStorage):
		middleware.WriteProblem(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrConflict):
		middleware.WriteProblem(w, http.StatusConflict, err.Error())
	case errors.As(err, &tooBig), errors.Is(err, blob.ErrTooLarge):
		middleware.WriteProblem(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		middleware.WriteProblem(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

// userID returns the signed-in user's id. Routes using it sit behind
// RequireAuth.
func userID(r *http.Request) string {
	if u := middleware.UserFromCtx(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

// yearParam parses a year path or form value.
func yearParam(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1900 || year > 9999 {
		return 0, models.Invalid("year: must be a four-digit year")
	}
	return year, nil
}
