package db

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ldi/taskboard/pkg/models"
)

func validInput(title string) models.TaskInput {
	return models.TaskInput{Title: title, Priority: models.PriorityUrgent}
}

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. Create
	due := "2024-01-01"
	task, err := db.CreateTask(ctx, models.TaskInput{
		Title:    "Ship report",
		Priority: models.PriorityUrgent,
		DueDate:  &due,
	})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.ID != 1 {
		t.Errorf("Expected ID 1, got %d", task.ID)
	}
	if task.Pinned {
		t.Errorf("Expected pinned to default to false")
	}
	if task.Tags == nil || len(task.Tags) != 0 {
		t.Errorf("Expected empty tags, got %#v", task.Tags)
	}
	if task.CreatedAt.IsZero() {
		t.Errorf("Expected CreatedAt to be set")
	}
	if task.DueDate == nil || *task.DueDate != due {
		t.Errorf("Expected due date %s, got %v", due, task.DueDate)
	}

	// 2. Get
	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched.Title != "Ship report" {
		t.Errorf("Expected title Ship report, got %s", fetched.Title)
	}
	if !fetched.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("Expected CreatedAt %v, got %v", task.CreatedAt, fetched.CreatedAt)
	}

	// 3. Pin only
	updated, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{Pinned: models.Some(true)})
	if err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if !updated.Pinned {
		t.Errorf("Expected pinned true")
	}
	if updated.Title != "Ship report" || updated.Priority != models.PriorityUrgent {
		t.Errorf("Partial update clobbered fields: %+v", updated)
	}
	if updated.DueDate == nil || *updated.DueDate != due {
		t.Errorf("Partial update clobbered due date: %v", updated.DueDate)
	}

	// 4. Delete
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	_, err = db.GetTask(ctx, task.ID)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after deletion, got %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   models.TaskInput
	}{
		{name: "missing title", in: models.TaskInput{Priority: models.PriorityLater}},
		{name: "blank title", in: models.TaskInput{Title: "   ", Priority: models.PriorityLater}},
		{name: "missing priority", in: models.TaskInput{Title: "x"}},
		{name: "invalid priority", in: models.TaskInput{Title: "x", Priority: "invalid"}},
		{name: "invalid due date", in: models.TaskInput{Title: "x", Priority: models.PriorityLater, DueDate: models.StringPtr("tomorrow")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateTask(ctx, tt.in)
			if !errors.Is(err, models.ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
		})
	}

	tasks, err := db.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no persisted tasks, got %d", len(tasks))
	}
}

func TestTagsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := validInput("tagged")
	in.Tags = []string{"y", "x", " y ", ""}
	task, err := db.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if want := []string{"y", "x"}; !reflect.DeepEqual(fetched.Tags, want) {
		t.Errorf("Expected tags %v, got %v", want, fetched.Tags)
	}

	var raw string
	if err := db.QueryRow("SELECT tags FROM tasks WHERE id = ?", task.ID).Scan(&raw); err != nil {
		t.Fatalf("raw select failed: %v", err)
	}
	if raw != `["y","x"]` {
		t.Errorf("Expected encoded tags, got %s", raw)
	}
}

func TestCreateTaskComments(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := validInput("with notes")
	in.Comments = models.StringPtr("call first")
	task, err := db.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Comments == nil || *task.Comments != "call first" {
		t.Errorf("Expected comments stored, got %v", task.Comments)
	}

	in = validInput("blank notes")
	in.Comments = models.StringPtr("")
	task, err = db.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Comments != nil {
		t.Errorf("Expected empty comments stored as null, got %q", *task.Comments)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := validInput("original")
	in.Tags = []string{"a", "b"}
	in.DueDate = models.StringPtr("2024-03-04")
	task, err := db.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{Comments: models.Some("note")}); err != nil {
		t.Fatalf("set comments failed: %v", err)
	}

	t.Run("empty patch returns current task", func(t *testing.T) {
		got, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{})
		if err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		if got.Title != "original" {
			t.Errorf("Expected title original, got %s", got.Title)
		}
	})

	t.Run("priority only", func(t *testing.T) {
		got, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{Priority: models.Some(models.PrioritySomeday)})
		if err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		if got.Priority != models.PrioritySomeday {
			t.Errorf("Expected someday, got %s", got.Priority)
		}
		if !reflect.DeepEqual(got.Tags, []string{"a", "b"}) {
			t.Errorf("Tags clobbered: %v", got.Tags)
		}
		if got.Comments == nil || *got.Comments != "note" {
			t.Errorf("Comments clobbered: %v", got.Comments)
		}
	})

	t.Run("null clears due date but not comments", func(t *testing.T) {
		got, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{DueDate: models.Null[string]()})
		if err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		if got.DueDate != nil {
			t.Errorf("Expected due date cleared, got %v", *got.DueDate)
		}
		if got.Comments == nil {
			t.Errorf("Comments should be untouched")
		}
	})

	t.Run("empty tags are distinct from absent tags", func(t *testing.T) {
		got, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{Tags: models.Some([]string{})})
		if err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		if len(got.Tags) != 0 {
			t.Errorf("Expected tags cleared, got %v", got.Tags)
		}
	})

	t.Run("invalid priority leaves task unchanged", func(t *testing.T) {
		_, err := db.UpdateTask(ctx, task.ID, models.TaskPatch{
			Title:    models.Some("renamed"),
			Priority: models.Some(models.Priority("never")),
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("Expected ErrValidation, got %v", err)
		}
		got, err := db.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask failed: %v", err)
		}
		if got.Title != "original" {
			t.Errorf("Expected title unchanged, got %s", got.Title)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := db.UpdateTask(ctx, 999, models.TaskPatch{Pinned: models.Some(true)})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		_, err = db.UpdateTask(ctx, 999, models.TaskPatch{})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound for empty patch, got %v", err)
		}
		_, err = db.UpdateTask(ctx, 999, models.TaskPatch{Priority: models.Some(models.Priority("bogus"))})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound before validation, got %v", err)
		}
	})
}

func TestListTasksOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, _ := db.CreateTask(ctx, validInput("first"))
	time.Sleep(5 * time.Millisecond)
	second, _ := db.CreateTask(ctx, validInput("second"))
	time.Sleep(5 * time.Millisecond)
	third, _ := db.CreateTask(ctx, validInput("third"))

	if _, err := db.UpdateTask(ctx, first.ID, models.TaskPatch{Pinned: models.Some(true)}); err != nil {
		t.Fatalf("pin failed: %v", err)
	}

	tasks, err := db.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	var got []int64
	for _, task := range tasks {
		got = append(got, task.ID)
	}
	want := []int64{first.ID, third.ID, second.ID}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected order %v, got %v", want, got)
	}
}

func TestDeleteUnknownTask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateTask(ctx, validInput("keep")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	err := db.DeleteTask(ctx, 42)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	tasks, _ := db.ListTasks(ctx)
	if len(tasks) != 1 {
		t.Errorf("Expected store unchanged with 1 task, got %d", len(tasks))
	}
}

func TestCountByPriority(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, p := range []models.Priority{models.PriorityUrgent, models.PriorityUrgent, models.PrioritySomeday} {
		if _, err := db.CreateTask(ctx, models.TaskInput{Title: "t", Priority: p}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	counts, err := db.CountByPriority(ctx)
	if err != nil {
		t.Fatalf("CountByPriority failed: %v", err)
	}
	want := map[models.Priority]int{
		models.PriorityUrgent:  2,
		models.PriorityLater:   0,
		models.PrioritySomeday: 1,
	}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("Expected %v, got %v", want, counts)
	}

	later, err := db.ListTasksByPriority(ctx, models.PriorityLater)
	if err != nil {
		t.Fatalf("ListTasksByPriority failed: %v", err)
	}
	if len(later) != 0 {
		t.Errorf("Expected empty later column, got %d", len(later))
	}
}
