package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"tasknest/internal/models"
)

func strp(s string) *string { return &s }

func TestTaskCreate_Defaults(t *testing.T) {
	svc, _ := newTestServices(t)

	task, err := svc.Tasks.Create(context.Background(), testUser, TaskInput{
		Text:     "  Buy milk ",
		Category: strp(models.AllTasksCategoryID),
		DueDate:  strp(""),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.ID == "" {
		t.Error("expected generated id")
	}
	if task.Text != "Buy milk" {
		t.Errorf("text = %q", task.Text)
	}
	if task.Priority != models.PriorityMedium || task.Status != models.StatusNew || task.Completed {
		t.Errorf("defaults = %s/%s/%v", task.Priority, task.Status, task.Completed)
	}
	if task.Category != nil {
		t.Errorf("category = %q, want nil for all-tasks", *task.Category)
	}
	if task.DueDate != nil {
		t.Errorf("dueDate = %q, want nil", *task.DueDate)
	}
	if !task.CreatedAt.Equal(fixedNow) {
		t.Errorf("createdAt = %v", task.CreatedAt)
	}
}

func TestTaskCreate_Validation(t *testing.T) {
	svc, _ := newTestServices(t)

	tests := []struct {
		name string
		in   TaskInput
	}{
		{"empty text", TaskInput{Text: " "}},
		{"bad priority", TaskInput{Text: "x", Priority: "urgent"}},
		{"bad status", TaskInput{Text: "x", Status: "blocked"}},
		{"bad due date", TaskInput{Text: "x", DueDate: strp("01/02/2024")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Tasks.Create(context.Background(), testUser, tt.in)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestTaskUpdate_Partial(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, testUser, TaskInput{
		Text:        "Write report",
		Category:    strp("office"),
		DueDate:     strp("2024-06-10"),
		Description: "Q2 numbers",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var patch TaskPatch
	if err := json.Unmarshal([]byte(`{"priority":"high","dueDate":null}`), &patch); err != nil {
		t.Fatalf("unmarshal patch: %v", err)
	}
	got, err := svc.Tasks.Update(ctx, testUser, task.ID, patch)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("priority = %q", got.Priority)
	}
	if got.DueDate != nil {
		t.Errorf("dueDate = %q, want cleared", *got.DueDate)
	}
	if got.Text != "Write report" || got.Description != "Q2 numbers" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.Category == nil || *got.Category != "office" {
		t.Errorf("category = %v", got.Category)
	}

	if _, err := svc.Tasks.Update(ctx, testUser, task.ID, TaskPatch{Status: Some(models.TaskStatus("later"))}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("invalid status: err = %v", err)
	}
	if _, err := svc.Tasks.Update(ctx, testUser, "missing", TaskPatch{Text: Some("x")}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing task: err = %v", err)
	}
}

func TestTaskToggleAndStatusAreIndependent(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, testUser, TaskInput{Text: "Call bank"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Tasks.Toggle(ctx, testUser, task.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !got.Completed || got.Status != models.StatusNew {
		t.Errorf("after toggle: completed=%v status=%s", got.Completed, got.Status)
	}

	got, err = svc.Tasks.SetStatus(ctx, testUser, task.ID, models.StatusInProgress)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if !got.Completed || got.Status != models.StatusInProgress {
		t.Errorf("after status: completed=%v status=%s", got.Completed, got.Status)
	}

	got, err = svc.Tasks.Toggle(ctx, testUser, task.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got.Completed {
		t.Error("second toggle should clear completed")
	}
}

func TestTaskView(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	mk := func(text string, category *string, status models.TaskStatus) string {
		task, err := svc.Tasks.Create(ctx, testUser, TaskInput{Text: text, Category: category, Status: status})
		if err != nil {
			t.Fatalf("Create %s: %v", text, err)
		}
		return task.ID
	}
	a := mk("a", strp("office"), models.StatusDone)
	b := mk("b", strp("Office"), models.StatusNew)
	c := mk("c", strp("home"), models.StatusNew)
	d := mk("d", nil, models.StatusInProgress)

	if _, err := svc.Tasks.Toggle(ctx, testUser, a); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	cats, err := svc.Categories.List(ctx, testUser)
	if err != nil {
		t.Fatalf("List categories: %v", err)
	}

	v, err := svc.Tasks.View(ctx, testUser, "office", cats)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(v.Active) != 1 || v.Active[0].ID != b {
		t.Errorf("office active = %+v", v.Active)
	}
	if len(v.Completed) != 1 || v.Completed[0].ID != a {
		t.Errorf("office completed = %+v", v.Completed)
	}

	all, err := svc.Tasks.View(ctx, testUser, "", cats)
	if err != nil {
		t.Fatalf("View all: %v", err)
	}
	if len(all.Sorted) != 4 {
		t.Fatalf("all sorted = %d tasks, want 4", len(all.Sorted))
	}
	// in-progress, then new, then done; ties keep store order.
	if all.Sorted[0].ID != d || all.Sorted[1].ID != b || all.Sorted[2].ID != c || all.Sorted[3].ID != a {
		t.Errorf("sorted order = %v", []string{all.Sorted[0].ID, all.Sorted[1].ID, all.Sorted[2].ID, all.Sorted[3].ID})
	}
}

func TestTaskDelete(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, testUser, TaskInput{Text: "tmp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Tasks.Delete(ctx, testUser, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Tasks.Delete(ctx, testUser, task.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second Delete: err = %v", err)
	}
	list, err := svc.Tasks.List(ctx, testUser)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list = %+v, want empty", list)
	}
}
