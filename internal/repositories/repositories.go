// package repositories provides the persistence layer for terminal task records.
//
// Live task state never touches the database; the scheduler owns it in
// memory. Once a task settles, a record of the outcome is archived here so
// operators can audit past renders after a restart.
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/motifd/internal/tasks"
)

// TaskRecord is one archived terminal task.
type TaskRecord struct {
	ID           string
	Owner        string
	Status       string
	InputPath    string
	Style        string
	Intensity    float64
	AudioPath    string
	Provider     string
	ErrorCode    string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// TaskRepository archives terminal tasks in SQLite.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a repository backed by the given database.
// The task_history migration must have been applied.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Record implements [tasks.Archive]. Non-terminal snapshots are rejected.
func (r *TaskRepository) Record(task tasks.Task) error {
	if !task.Status.Terminal() {
		return fmt.Errorf("refusing to archive non-terminal task %s", task.ID)
	}

	record := fromTask(task)
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO task_history
			(id, owner, status, input_path, style, intensity, audio_path, provider, error_code, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Owner, record.Status, record.InputPath,
		record.Style, record.Intensity, record.AudioPath, record.Provider,
		record.ErrorCode, record.ErrorMessage, record.CreatedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive task %s: %w", task.ID, err)
	}
	return nil
}

// List returns the most recent records for an owner, newest first.
// An empty owner lists across all owners.
func (r *TaskRepository) List(owner string, limit int) ([]TaskRecord, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
		SELECT id, owner, status, input_path, style, intensity, audio_path, provider, error_code, error_message, created_at, completed_at
		FROM task_history`
	args := []any{}
	if owner != "" {
		query += " WHERE owner = ?"
		args = append(args, owner)
	}
	query += " ORDER BY completed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list task history: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var record TaskRecord
		if err := rows.Scan(
			&record.ID, &record.Owner, &record.Status, &record.InputPath,
			&record.Style, &record.Intensity, &record.AudioPath, &record.Provider,
			&record.ErrorCode, &record.ErrorMessage, &record.CreatedAt, &record.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Get fetches a single archived record by task id.
func (r *TaskRepository) Get(id string) (*TaskRecord, error) {
	row := r.db.QueryRow(`
		SELECT id, owner, status, input_path, style, intensity, audio_path, provider, error_code, error_message, created_at, completed_at
		FROM task_history WHERE id = ?`, id)

	var record TaskRecord
	if err := row.Scan(
		&record.ID, &record.Owner, &record.Status, &record.InputPath,
		&record.Style, &record.Intensity, &record.AudioPath, &record.Provider,
		&record.ErrorCode, &record.ErrorMessage, &record.CreatedAt, &record.CompletedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load task record: %w", err)
	}
	return &record, nil
}

func fromTask(task tasks.Task) TaskRecord {
	record := TaskRecord{
		ID:        task.ID,
		Owner:     task.Owner,
		Status:    string(task.Status),
		InputPath: task.InputPath,
		Style:     task.Params.Style,
		Intensity: task.Params.Intensity,
		CreatedAt: task.CreatedAt.UTC(),
	}
	if task.CompletedAt != nil {
		record.CompletedAt = task.CompletedAt.UTC()
	}
	if task.Result != nil {
		record.AudioPath = task.Result.AudioPath
		record.Provider = task.Result.Provider
	}
	if task.Error != nil {
		record.ErrorCode = task.Error.Code
		record.ErrorMessage = task.Error.Message
	}
	return record
}
