package memstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task statuses. The only transition is pending → done.
const (
	TaskPending = "pending"
	TaskDone    = "done"
)

// Task is a unit of agent work created and completed by tool calls.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateTask inserts a new pending task and returns its ID.
func (s *Store) CreateTask(description string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, description, status, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), description, TaskPending, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// CompleteTask transitions a pending task to done. The id may be a full
// UUID or a unique prefix. Completing an already-done task is a no-op.
func (s *Store) CompleteTask(idOrPrefix string) (*Task, error) {
	tasks, err := s.ListTasks("")
	if err != nil {
		return nil, err
	}

	var found *Task
	for i := range tasks {
		if tasks[i].ID.String() == idOrPrefix || strings.HasPrefix(tasks[i].ID.String(), idOrPrefix) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous task id prefix: %s", idOrPrefix)
			}
			found = &tasks[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("task not found: %s", idOrPrefix)
	}

	if found.Status == TaskDone {
		return found, nil
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?
	`, TaskDone, now.Format(time.RFC3339Nano), found.ID.String())
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}

	found.Status = TaskDone
	found.CompletedAt = &now
	return found, nil
}

// ListTasks returns tasks, optionally filtered by status, oldest first.
func (s *Store) ListTasks(status string) ([]Task, error) {
	query := `SELECT id, description, status, created_at, completed_at FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var id, createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&id, &t.Description, &t.Status, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ID, _ = uuid.Parse(id)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if completedAt.Valid {
			done, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			t.CompletedAt = &done
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
