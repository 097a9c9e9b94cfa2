package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/motifd/internal/providers"
	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/tasks"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func terminalTask(id, owner string, status tasks.Status) tasks.Task {
	created := time.Now().Add(-time.Minute)
	completed := time.Now()
	task := tasks.Task{
		ID:          id,
		Owner:       owner,
		Status:      status,
		InputPath:   "outputs/demo.mid",
		Params:      providers.Params{Style: "cinematic", Intensity: 0.5},
		Progress:    100,
		CreatedAt:   created,
		CompletedAt: &completed,
	}
	switch status {
	case tasks.StatusSucceeded:
		task.Result = &tasks.Result{
			AudioPath: "outputs/demo_a1b2c3d4.wav",
			AudioURL:  "/outputs/demo_a1b2c3d4.wav",
			Format:    "wav",
			Provider:  "local-synth",
		}
	case tasks.StatusFailed:
		task.Error = &tasks.TaskError{Code: "E_PROVIDER", Message: "upstream unavailable"}
	}
	return task
}

func TestRecordAndGet(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	if err := repo.Record(terminalTask("task-1", "alice", tasks.StatusSucceeded)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	record, err := repo.Get("task-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record == nil {
		t.Fatal("record not found after Record()")
	}
	if record.Status != "succeeded" || record.Provider != "local-synth" {
		t.Errorf("record = %+v, want succeeded via local-synth", record)
	}
	if record.Style != "cinematic" || record.Intensity != 0.5 {
		t.Errorf("params not persisted: style=%s intensity=%v", record.Style, record.Intensity)
	}
}

func TestRecordRejectsNonTerminal(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	task := terminalTask("task-1", "alice", tasks.StatusSucceeded)
	task.Status = tasks.StatusRunning
	if err := repo.Record(task); err == nil {
		t.Error("archiving a running task should fail")
	}
}

func TestRecordFailedTaskKeepsError(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	if err := repo.Record(terminalTask("task-1", "alice", tasks.StatusFailed)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	record, err := repo.Get("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.ErrorCode != "E_PROVIDER" || record.ErrorMessage == "" {
		t.Errorf("error fields = %s/%s, want populated E_PROVIDER", record.ErrorCode, record.ErrorMessage)
	}
}

func TestListScopesAndOrders(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i, spec := range []struct {
		id, owner string
	}{
		{"task-1", "alice"}, {"task-2", "bob"}, {"task-3", "alice"},
	} {
		task := terminalTask(spec.id, spec.owner, tasks.StatusSucceeded)
		completed := base.Add(time.Duration(i) * time.Minute)
		task.CompletedAt = &completed
		if err := repo.Record(task); err != nil {
			t.Fatal(err)
		}
	}

	records, err := repo.List("alice", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	if records[0].ID != "task-3" || records[1].ID != "task-1" {
		t.Errorf("order = [%s %s], want newest first [task-3 task-1]", records[0].ID, records[1].ID)
	}

	all, err := repo.List("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("unscoped len = %d, want 3", len(all))
	}

	limited, err := repo.List("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	record, err := repo.Get("no-such-task")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record != nil {
		t.Errorf("record = %+v, want nil", record)
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	repo := NewTaskRepository(newTestDB(t))

	task := terminalTask("task-1", "alice", tasks.StatusSucceeded)
	if err := repo.Record(task); err != nil {
		t.Fatal(err)
	}
	if err := repo.Record(task); err != nil {
		t.Fatalf("re-recording the same task should upsert, got %v", err)
	}

	records, err := repo.List("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("len = %d, want 1 after duplicate record", len(records))
	}
}
