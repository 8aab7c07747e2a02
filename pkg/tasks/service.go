package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is a task lifecycle state
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses is the closed set of task states, for schema enums
var Statuses = []string{"todo", "in_progress", "done"}

// validTransitions is the lifecycle graph. A done task reopens to todo only.
var validTransitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress, StatusDone},
	StatusInProgress: {StatusTodo, StatusDone},
	StatusDone:       {StatusTodo},
}

// CanTransition reports whether moving from one status to another is allowed
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when no task matches the workspace-scoped id
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned for a move outside the lifecycle graph
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Task is a workspace-scoped work item
type Task struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Filter narrows List results
type Filter struct {
	Status     Status
	AssigneeID int64
	Limit      int
	Offset     int
}

const defaultListLimit = 50

// PostgresStore persists tasks in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a task store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a task
func (s *PostgresStore) Create(ctx context.Context, task *Task) error {
	if task.Status == "" {
		task.Status = StatusTodo
	}

	query := `
		INSERT INTO tasks (workspace_id, title, description, status, assignee_id, due_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		task.WorkspaceID, task.Title, task.Description, task.Status,
		task.AssigneeID, task.DueDate, task.CreatedBy,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// Get retrieves a task scoped to the workspace
func (s *PostgresStore) Get(ctx context.Context, workspaceID, id int64) (*Task, error) {
	query := `
		SELECT id, workspace_id, title, description, status, assignee_id, due_date, created_by, created_at, updated_at
		FROM tasks
		WHERE workspace_id = $1 AND id = $2
	`
	task := &Task{}
	var description sql.NullString
	var dueDate sql.NullTime
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&task.ID, &task.WorkspaceID, &task.Title, &description, &task.Status,
		&task.AssigneeID, &dueDate, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	task.Description = description.String
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return task, nil
}

// List retrieves tasks in a workspace, newest first
func (s *PostgresStore) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Task, error) {
	query := `
		SELECT id, workspace_id, title, description, status, assignee_id, due_date, created_by, created_at, updated_at
		FROM tasks
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	argCount := 1

	if filter.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
	}
	if filter.AssigneeID > 0 {
		argCount++
		query += fmt.Sprintf(" AND assignee_id = $%d", argCount)
		args = append(args, filter.AssigneeID)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	argCount++
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)

	if filter.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task := &Task{}
		var description sql.NullString
		var dueDate sql.NullTime
		if err := rows.Scan(
			&task.ID, &task.WorkspaceID, &task.Title, &description, &task.Status,
			&task.AssigneeID, &dueDate, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Description = description.String
		if dueDate.Valid {
			task.DueDate = &dueDate.Time
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// Update saves mutable fields of a task scoped to the workspace
func (s *PostgresStore) Update(ctx context.Context, task *Task) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, assignee_id = $4, due_date = $5, updated_at = NOW()
		WHERE workspace_id = $6 AND id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.AssigneeID,
		task.DueDate, task.WorkspaceID, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task scoped to the workspace
func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
