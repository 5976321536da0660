package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "CREATED"
	TaskStatusProcessing     TaskStatus = "PROCESSING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusNoAttemptsLeft TaskStatus = "NO_ATTEMPTS_LEFT"
)

// Task is an outbox row: one order event waiting to be published.
type Task struct {
	ID            int
	EventID       string
	Key           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    sql.NullTime
	Payload       []byte
	Status        TaskStatus
	AttemptCount  int
	NextAttemptAt sql.NullTime
}

type TaskRepository interface {
	CreateTask(ctx context.Context, eventID, key string, payload []byte) error
	GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error)
	MarkTaskProcessing(ctx context.Context, taskID int) error
	DeleteTask(ctx context.Context, taskID int) error
	UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error
}

type PostgresTaskRepository struct {
	db *sql.DB
}

func NewPostgresTaskRepository(db *sql.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

func (r *PostgresTaskRepository) CreateTask(ctx context.Context, eventID, key string, payload []byte) error {
	query := `
		INSERT INTO tasks (event_id, message_key, created_at, updated_at, payload, status, attempt_count)
		VALUES ($1, $2, NOW(), NOW(), $3, $4, 0)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, eventID, key, payload, TaskStatusCreated)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepository) GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	query := `
		SELECT id, event_id, message_key, created_at, updated_at, finished_at, payload, status, attempt_count, next_attempt_at
		FROM tasks
		WHERE status IN ($1, $2)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		  AND attempt_count < $3
		ORDER BY created_at, id
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, TaskStatusCreated, TaskStatusFailed, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []*Task
	for rows.Next() {
		t := &Task{}
		if err := rows.Scan(&t.ID, &t.EventID, &t.Key, &t.CreatedAt,
			&t.UpdatedAt, &t.FinishedAt,
			&t.Payload, &t.Status,
			&t.AttemptCount, &t.NextAttemptAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *PostgresTaskRepository) MarkTaskProcessing(ctx context.Context, taskID int) error {
	query := `
		UPDATE tasks SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, TaskStatusProcessing, taskID)
	return err
}

func (r *PostgresTaskRepository) DeleteTask(ctx context.Context, taskID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	return err
}

func (r *PostgresTaskRepository) UpdateTaskFailure(ctx context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, attempt_count = $2, updated_at = NOW(), next_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, newStatus, attemptCount, nextAttemptAt, taskID)
	return err
}

// MemoryTaskRepository is the outbox used when no database is configured.
type MemoryTaskRepository struct {
	mu     sync.Mutex
	nextID int
	tasks  map[int]*Task
	events map[string]struct{}
	now    func() time.Time
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks:  make(map[int]*Task),
		events: make(map[string]struct{}),
		now:    time.Now,
	}
}

func (r *MemoryTaskRepository) CreateTask(_ context.Context, eventID, key string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[eventID]; ok {
		return nil
	}
	r.nextID++
	now := r.now()
	r.tasks[r.nextID] = &Task{
		ID:        r.nextID,
		EventID:   eventID,
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   append([]byte(nil), payload...),
		Status:    TaskStatusCreated,
	}
	r.events[eventID] = struct{}{}
	return nil
}

func (r *MemoryTaskRepository) GetPendingTasks(_ context.Context, limit, maxAttempts int) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []*Task
	for _, t := range r.tasks {
		if t.Status != TaskStatusCreated && t.Status != TaskStatusFailed {
			continue
		}
		if t.AttemptCount >= maxAttempts {
			continue
		}
		if t.NextAttemptAt.Valid && t.NextAttemptAt.Time.After(now) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) MarkTaskProcessing(_ context.Context, taskID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = TaskStatusProcessing
	t.UpdatedAt = r.now()
	return nil
}

func (r *MemoryTaskRepository) DeleteTask(_ context.Context, taskID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

func (r *MemoryTaskRepository) UpdateTaskFailure(_ context.Context, taskID int, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = newStatus
	t.AttemptCount = attemptCount
	t.UpdatedAt = r.now()
	t.NextAttemptAt = sql.NullTime{Time: nextAttemptAt, Valid: true}
	return nil
}

// Snapshot returns copies of all stored tasks ordered by id.
func (r *MemoryTaskRepository) Snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
