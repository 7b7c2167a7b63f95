// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
	"tasknest/internal/view"
)

// TaskInput creates a task. Missing priority and status take defaults.
type TaskInput struct {
	Text        string            `json:"text"`
	Category    *string           `json:"category"`
	Priority    models.Priority   `json:"priority"`
	Status      models.TaskStatus `json:"status"`
	DueDate     *string           `json:"dueDate"`
	Description string            `json:"description"`
}

// TaskPatch changes only the fields that are set.
type TaskPatch struct {
	Text        Field[string]            `json:"text"`
	Completed   Field[bool]              `json:"completed"`
	Category    Field[*string]           `json:"category"`
	Priority    Field[models.Priority]   `json:"priority"`
	Status      Field[models.TaskStatus] `json:"status"`
	DueDate     Field[*string]           `json:"dueDate"`
	Description Field[string]            `json:"description"`
}

var (
	priorityRule = validation.In(models.PriorityLow, models.PriorityMedium, models.PriorityHigh)
	statusRule   = validation.In(models.StatusNew, models.StatusInProgress, models.StatusDone)
	dateRule     = validation.By(func(v any) error {
		if s, ok := v.(string); ok && s != "" && !view.ValidDate(s) {
			return validation.NewError("validation_date", "must be a date in YYYY-MM-DD format")
		}
		return nil
	})
)

// normalizeCategory maps the all-tasks pseudo category and blanks to null.
func normalizeCategory(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.TrimSpace(*c)
	if v == "" || v == models.AllTasksCategoryID {
		return nil
	}
	return &v
}

func normalizeDate(d *string) *string {
	if d == nil || strings.TrimSpace(*d) == "" {
		return nil
	}
	v := strings.TrimSpace(*d)
	return &v
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TaskService manages tasks.
type TaskService struct {
	store     docstore.Store
	snapshots *cache.SnapshotCache
	hub       *reconcile.Hub[models.Task]

	Now Clock
}

// NewTaskService creates the service and its subscription hub.
func NewTaskService(store docstore.Store, snapshots *cache.SnapshotCache) *TaskService {
	return &TaskService{
		store:     store,
		snapshots: snapshots,
		hub:       reconcile.NewHub[models.Task]("tasks", nil, streamSource[models.Task](store, CollTasks, nil)),
		Now:       time.Now,
	}
}

// List returns all of the user's tasks in store order.
func (s *TaskService) List(ctx context.Context, userID string) ([]models.Task, error) {
	return cachedList(ctx, s.snapshots, userID, kindTasks, func() ([]models.Task, error) {
		docs, err := s.store.List(ctx, userID, CollTasks)
		if err != nil {
			return nil, err
		}
		return reconcile.Reconcile(nil, decodeAll[models.Task](CollTasks, docs)), nil
	})
}

// View projects the user's tasks for a selected category. A known category
// also matches tasks filed under its name.
func (s *TaskService) View(ctx context.Context, userID, selected string, categories []models.Category) (view.TaskView, error) {
	tasks, err := s.List(ctx, userID)
	if err != nil {
		return view.TaskView{}, err
	}
	for _, c := range categories {
		if c.ID == selected && selected != models.AllTasksCategoryID {
			return view.ProjectFor(tasks, c), nil
		}
	}
	return view.Project(tasks, selected), nil
}

// Get returns one task.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	d, err := s.store.Get(ctx, userID, CollTasks, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	var t models.Task
	if err := d.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// Create adds a task. New tasks are not completed and default to status
// new and priority medium.
func (s *TaskService) Create(ctx context.Context, userID string, in TaskInput) (*models.Task, error) {
	in.Text = strings.TrimSpace(in.Text)
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.Status == "" {
		in.Status = models.StatusNew
	}
	in.DueDate = normalizeDate(in.DueDate)

	err := validation.Errors{
		"text":     validation.Validate(in.Text, validation.Required, validation.RuneLength(1, 1000)),
		"priority": validation.Validate(in.Priority, priorityRule),
		"status":   validation.Validate(in.Status, statusRule),
		"dueDate":  validation.Validate(derefOr(in.DueDate), dateRule),
	}.Filter()
	if err != nil {
		return nil, invalid(err)
	}

	t := models.Task{
		Text:        in.Text,
		Completed:   false,
		Category:    normalizeCategory(in.Category),
		Priority:    in.Priority,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Description: in.Description,
		CreatedAt:   s.Now().UTC(),
	}
	id, err := s.store.Create(ctx, userID, CollTasks, "", t)
	if err != nil {
		return nil, err
	}
	t.ID = id
	s.snapshots.Invalidate(ctx, userID, kindTasks)
	return &t, nil
}

// Update applies a partial change. status and completed are independent.
func (s *TaskService) Update(ctx context.Context, userID, id string, p TaskPatch) (*models.Task, error) {
	fields := map[string]any{}
	errs := validation.Errors{}

	if p.Text.Set {
		text := strings.TrimSpace(p.Text.Value)
		errs["text"] = validation.Validate(text, validation.Required, validation.RuneLength(1, 1000))
		fields["text"] = text
	}
	if p.Completed.Set {
		fields["completed"] = p.Completed.Value
	}
	if p.Category.Set {
		fields["category"] = normalizeCategory(p.Category.Value)
	}
	if p.Priority.Set {
		errs["priority"] = validation.Validate(p.Priority.Value, validation.Required, priorityRule)
		fields["priority"] = p.Priority.Value
	}
	if p.Status.Set {
		errs["status"] = validation.Validate(p.Status.Value, validation.Required, statusRule)
		fields["status"] = p.Status.Value
	}
	if p.DueDate.Set {
		due := normalizeDate(p.DueDate.Value)
		errs["dueDate"] = validation.Validate(derefOr(due), dateRule)
		fields["dueDate"] = due
	}
	if p.Description.Set {
		fields["description"] = p.Description.Value
	}

	if err := errs.Filter(); err != nil {
		return nil, invalid(err)
	}
	if len(fields) == 0 {
		return s.Get(ctx, userID, id)
	}

	if err := s.store.Update(ctx, userID, CollTasks, id, fields); err != nil {
		return nil, err
	}
	s.snapshots.Invalidate(ctx, userID, kindTasks)
	return s.Get(ctx, userID, id)
}

// Toggle flips the completed flag.
func (s *TaskService) Toggle(ctx context.Context, userID, id string) (*models.Task, error) {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, userID, id, TaskPatch{Completed: Some(!t.Completed)})
}

// SetStatus moves a task to any status.
func (s *TaskService) SetStatus(ctx context.Context, userID, id string, status models.TaskStatus) (*models.Task, error) {
	return s.Update(ctx, userID, id, TaskPatch{Status: Some(status)})
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.store.Get(ctx, userID, CollTasks, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err := s.store.Delete(ctx, userID, CollTasks, id); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, userID, kindTasks)
	return nil
}

// Subscribe returns a live handle on the user's tasks.
func (s *TaskService) Subscribe(userID string) *reconcile.Handle[models.Task] {
	return s.hub.Acquire(userID)
}
