// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package view derives the filtered and sorted lists shown to the user from
// the live task and record collections. Every function is pure and returns
// a new slice.
package view

import (
	"sort"

	"tasknest/internal/models"
)

// TaskView is the projection of one task list for a selected category.
type TaskView struct {
	Category  string        `json:"category"`
	Sorted    []models.Task `json:"sorted"`
	Active    []models.Task `json:"active"`
	Completed []models.Task `json:"completed"`
}

// FilterTasks keeps the tasks filed under selected. The all-tasks category
// and an empty selection keep everything.
func FilterTasks(tasks []models.Task, selected string) []models.Task {
	return filter(tasks, selected, "")
}

// FilterTasksFor is FilterTasks for a known category. Older clients filed
// tasks under the category name instead of its id, so both match.
func FilterTasksFor(tasks []models.Task, c models.Category) []models.Task {
	return filter(tasks, c.ID, c.Name)
}

func filter(tasks []models.Task, id, name string) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if id == "" || id == models.AllTasksCategoryID {
			out = append(out, t)
			continue
		}
		if t.Category == nil {
			continue
		}
		if *t.Category == id || (name != "" && *t.Category == name) {
			out = append(out, t)
		}
	}
	return out
}

// statusRank orders statuses for display. Unknown statuses sort last.
func statusRank(s models.TaskStatus) int {
	switch s {
	case models.StatusInProgress:
		return 1
	case models.StatusNew:
		return 2
	case models.StatusDone:
		return 3
	}
	return 999
}

// SortTasksByStatus orders tasks in-progress, new, done, then anything else.
// Tasks with the same status keep their store order.
func SortTasksByStatus(tasks []models.Task) []models.Task {
	out := append([]models.Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		return statusRank(out[i].Status) < statusRank(out[j].Status)
	})
	return out
}

// Partition splits tasks by the completed flag, keeping order.
func Partition(tasks []models.Task) (active, completed []models.Task) {
	active = []models.Task{}
	completed = []models.Task{}
	for _, t := range tasks {
		if t.Completed {
			completed = append(completed, t)
		} else {
			active = append(active, t)
		}
	}
	return active, completed
}

// Project filters by category, sorts by status and partitions.
func Project(tasks []models.Task, selected string) TaskView {
	sorted := SortTasksByStatus(FilterTasks(tasks, selected))
	active, completed := Partition(sorted)
	if selected == "" {
		selected = models.AllTasksCategoryID
	}
	return TaskView{Category: selected, Sorted: sorted, Active: active, Completed: completed}
}

// ProjectFor is Project for a known category.
func ProjectFor(tasks []models.Task, c models.Category) TaskView {
	sorted := SortTasksByStatus(FilterTasksFor(tasks, c))
	active, completed := Partition(sorted)
	return TaskView{Category: c.ID, Sorted: sorted, Active: active, Completed: completed}
}
