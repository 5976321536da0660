package taskprocessor

import (
	"context"
	"log/slog"
	"time"

	"bloodbank/internal/kafka"
	"bloodbank/internal/repository"
)

type Config struct {
	Topic        string
	PollInterval time.Duration
	Limit        int
	MaxAttempts  int
	RetryDelay   time.Duration
}

// TaskProcessor drains the outbox: each pending task is published to Kafka and
// deleted, or rescheduled with a growing delay until attempts run out.
type TaskProcessor struct {
	repo      repository.TaskRepository
	publisher kafka.Publisher
	log       *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewTaskProcessor(repo repository.TaskRepository, publisher kafka.Publisher, cfg Config, log *slog.Logger) *TaskProcessor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &TaskProcessor{
		repo:      repo,
		publisher: publisher,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
			ticker.Reset(p.cfg.PollInterval)
		}
	}
}

// ProcessPending runs one poll and returns the number of tasks published.
func (p *TaskProcessor) ProcessPending(ctx context.Context) int {
	tasks, err := p.repo.GetPendingTasks(ctx, p.cfg.Limit, p.cfg.MaxAttempts)
	if err != nil {
		p.log.Error("fetch pending tasks", "err", err)
		return 0
	}
	published := 0
	for _, task := range tasks {
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			p.log.Error("mark task processing", "task_id", task.ID, "err", err)
			continue
		}

		if err := p.publisher.Publish(p.cfg.Topic, task.Key, task.Payload); err != nil {
			p.fail(ctx, task, err)
			continue
		}
		published++
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			p.log.Error("delete published task", "task_id", task.ID, "err", err)
		}
	}
	return published
}

func (p *TaskProcessor) fail(ctx context.Context, task *repository.Task, err error) {
	attempt := task.AttemptCount + 1
	status := repository.TaskStatusFailed
	if attempt >= p.cfg.MaxAttempts {
		status = repository.TaskStatusNoAttemptsLeft
	}
	next := p.now().Add(p.cfg.RetryDelay * time.Duration(attempt))
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, attempt, status, next); errUpd != nil {
		p.log.Error("update failed task", "task_id", task.ID, "err", errUpd)
	}
	p.log.Warn("publish task failed", "task_id", task.ID, "event_id", task.EventID, "attempt", attempt, "status", status, "err", err)
}
