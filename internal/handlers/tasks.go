// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasknest/internal/markdown"
	"tasknest/internal/models"
	"tasknest/internal/service"
	"tasknest/internal/view"
)

// Tasks groups the category and task handlers.
type Tasks struct {
	categories *service.CategoryService
	tasks      *service.TaskService
}

// NewTasks creates the task handler group.
func NewTasks(categories *service.CategoryService, tasks *service.TaskService) *Tasks {
	return &Tasks{categories: categories, tasks: tasks}
}

// taskJSON is a task with its rendered description.
type taskJSON struct {
	models.Task
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
}

func renderTask(t models.Task) taskJSON {
	out := taskJSON{Task: t}
	if t.Description != "" {
		html, err := markdown.ToHTML(t.Description)
		if err != nil {
			slog.Warn("render task description", "task", t.ID, "error", err)
		}
		out.DescriptionHTML = html
	}
	return out
}

func renderTasks(ts []models.Task) []taskJSON {
	out := make([]taskJSON, len(ts))
	for i, t := range ts {
		out[i] = renderTask(t)
	}
	return out
}

type taskViewJSON struct {
	Category  string     `json:"category"`
	Sorted    []taskJSON `json:"sorted"`
	Active    []taskJSON `json:"active"`
	Completed []taskJSON `json:"completed"`
}

func renderView(v view.TaskView) taskViewJSON {
	return taskViewJSON{
		Category:  v.Category,
		Sorted:    renderTasks(v.Sorted),
		Active:    renderTasks(v.Active),
		Completed: renderTasks(v.Completed),
	}
}

// ListCategories returns the default and custom categories.
func (h *Tasks) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.List(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// CreateCategory adds a custom category.
func (h *Tasks) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.categories.Create(r.Context(), userID(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCategory renames a custom category or changes its icon.
func (h *Tasks) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := h.categories.Update(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCategory removes a custom category.
func (h *Tasks) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks returns every task in store order.
func (h *Tasks) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTasks(tasks))
}

// TaskView returns the filtered, sorted and partitioned tasks for the
// category query parameter.
func (h *Tasks) TaskView(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	cats, err := h.categories.List(r.Context(), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	v, err := h.tasks.View(r.Context(), uid, r.URL.Query().Get("category"), cats)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderView(v))
}

// GetTask returns one task.
func (h *Tasks) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTask(*t))
}

// CreateTask adds a task.
func (h *Tasks) CreateTask(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.tasks.Create(r.Context(), userID(r), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderTask(*t))
}

// UpdateTask applies a partial update. Absent fields are unchanged; null
// clears the category or due date.
func (h *Tasks) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var p service.TaskPatch
	if err := decodeJSON(w, r, &p); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.tasks.Update(r.Context(), userID(r), chi.URLParam(r, "id"), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTask(*t))
}

// ToggleTask flips the completed flag.
func (h *Tasks) ToggleTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Toggle(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTask(*t))
}

// SetTaskStatus moves a task to another status.
func (h *Tasks) SetTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.TaskStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.tasks.SetStatus(r.Context(), userID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTask(*t))
}

// DeleteTask removes a task.
func (h *Tasks) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
