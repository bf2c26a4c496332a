package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/fentz26/morningtrio/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("Expected schema version %d, got %d", len(migrations), v)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := New(dbPath)
		if err != nil {
			t.Fatalf("open #%d failed: %v", i, err)
		}
		if err := s.migrate(context.Background()); err != nil {
			t.Fatalf("re-running migrate failed: %v", err)
		}
		v, _ := s.SchemaVersion(context.Background())
		if v != len(migrations) {
			t.Errorf("Expected schema version %d, got %d", len(migrations), v)
		}
		s.Close()
	}
}

func TestMigrateFromVersionOne(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	// Build a database as the first release left it.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE schema_version (version INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create schema_version: %v", err)
	}
	if _, err := raw.Exec(migrations[0].sql); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if _, err := raw.Exec(`INSERT INTO schema_version (version) VALUES (1)`); err != nil {
		t.Fatalf("stamp v1: %v", err)
	}
	if _, err := raw.Exec(
		`INSERT INTO tasks (id, text, completed, section, order_index, created_date) VALUES ('old-1', 'Legacy task', 0, 'mustDo', 4, '2026-01-02')`,
	); err != nil {
		t.Fatalf("seed v1 row: %v", err)
	}
	raw.Close()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to upgrade store: %v", err)
	}
	defer s.Close()

	got, err := s.GetTask(context.Background(), "old-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.UserID != models.LocalOwner {
		t.Errorf("Expected migrated owner %q, got %q", models.LocalOwner, got.UserID)
	}
	if got.TaskList != models.TaskListPersonal {
		t.Errorf("Expected migrated list personal, got %q", got.TaskList)
	}
	if got.Text != "Legacy task" || got.Section != models.SectionMustDo || got.OrderIndex != 4 {
		t.Errorf("Migrated row lost data: %+v", got)
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("t1", "alice", "Buy milk", models.SectionOther, 0)
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	if err := s.InsertTask(ctx, task); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists on duplicate insert, got %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.Equal(task) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", *got, task)
	}

	done := true
	updated, err := s.UpdateTask(ctx, "t1", models.Patch{Completed: &done, CompletedDate: models.StringPtr("2026-10-19")})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if !updated.Completed || updated.CompletedDate == nil || *updated.CompletedDate != "2026-10-19" {
		t.Errorf("Patch not applied: %+v", updated)
	}

	updated, err = s.UpdateTask(ctx, "t1", models.Patch{ClearCompletedDate: true})
	if err != nil {
		t.Fatalf("UpdateTask clear failed: %v", err)
	}
	got, _ = s.GetTask(ctx, "t1")
	if got.CompletedDate != nil {
		t.Errorf("Expected completed_date cleared, got %v", *got.CompletedDate)
	}

	if _, err := s.UpdateTask(ctx, "missing", models.Patch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := s.DeleteTask(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListTasksFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []models.Task{
		newTask("a", "alice", "A", models.SectionOther, 2),
		newTask("b", "alice", "B", models.SectionOther, 0),
		newTask("c", "alice", "C", models.SectionMustDo, 1),
		newTask("d", "bob", "D", models.SectionOther, 0),
	}
	work := newTask("e", "alice", "E", models.SectionOther, 1)
	work.TaskList = models.TaskListWork
	seed = append(seed, work)
	for _, task := range seed {
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask failed: %v", err)
		}
	}

	all, err := s.ListTasks(ctx, TaskFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 alice tasks, got %d", len(all))
	}

	list := models.TaskListPersonal
	section := models.SectionOther
	other, err := s.ListTasks(ctx, TaskFilter{UserID: "alice", TaskList: &list, Section: &section})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if ids := taskIDs(other); len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Errorf("Expected [b a], got %v", ids)
	}

	max, err := s.MaxOrderIndex(ctx, "alice", models.TaskListPersonal, models.SectionOther)
	if err != nil {
		t.Fatalf("MaxOrderIndex failed: %v", err)
	}
	if max != 2 {
		t.Errorf("Expected max 2, got %d", max)
	}
	empty, _ := s.MaxOrderIndex(ctx, "carol", models.TaskListPersonal, models.SectionOther)
	if empty != -1 {
		t.Errorf("Expected -1 for empty partition, got %d", empty)
	}
}

func TestInTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertTask(ctx, newTask("keep", "alice", "Keep", models.SectionOther, 0)); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.InsertTask(ctx, newTask("new", "alice", "New", models.SectionOther, 1)); err != nil {
			return err
		}
		if _, err := tx.ReassignOwner(ctx, "alice", "bob"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	if _, err := s.GetTask(ctx, "new"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Rolled back insert is visible: %v", err)
	}
	got, _ := s.GetTask(ctx, "keep")
	if got.UserID != "alice" {
		t.Errorf("Rolled back reassign is visible: owner %s", got.UserID)
	}
}

func TestDeleteTasksAndReassign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"x", "y", "z"} {
		if err := s.InsertTask(ctx, newTask(id, models.LocalOwner, id, models.SectionOther, 0)); err != nil {
			t.Fatalf("InsertTask failed: %v", err)
		}
	}

	n, err := s.DeleteTasks(ctx, []string{"x", "y", "missing"})
	if err != nil {
		t.Fatalf("DeleteTasks failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 deleted, got %d", n)
	}

	moved, err := s.ReassignOwner(ctx, models.LocalOwner, "alice")
	if err != nil {
		t.Fatalf("ReassignOwner failed: %v", err)
	}
	if moved != 1 {
		t.Errorf("Expected 1 reassigned, got %d", moved)
	}
	count, _ := s.CountTasks(ctx, "alice")
	if count != 1 {
		t.Errorf("Expected alice to own 1 task, got %d", count)
	}
}

func TestAppState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetAppState(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	rec := StateRecord{Owner: "alice", Version: 2, Data: `{"currentDate":"2026-10-19"}`}
	if err := s.PutAppState(ctx, rec); err != nil {
		t.Fatalf("PutAppState failed: %v", err)
	}
	got, err := s.GetAppState(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAppState failed: %v", err)
	}
	if *got != rec {
		t.Errorf("Expected %+v, got %+v", rec, *got)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTask(id, owner, text string, section models.Section, order int) models.Task {
	return models.Task{
		ID:          id,
		UserID:      owner,
		Text:        text,
		Section:     section,
		TaskList:    models.TaskListPersonal,
		OrderIndex:  order,
		CreatedDate: "2026-10-19",
	}
}

func taskIDs(tasks []models.Task) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.WriteAudit(ctx, "alice", "task.create", "h1", "success", "t1", ""); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if _, err := s.WriteAudit(ctx, "alice", "task.delete", "h2", "success", "t1", ""); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if _, err := s.WriteAudit(ctx, "bob", "task.create", "h3", "success", "t2", ""); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}

	entries, err := s.ListAudit(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "task.delete" {
		t.Errorf("Expected newest first, got %s", entries[0].Action)
	}
}
