package audit

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"bloodbank/internal/repository"
)

const (
	ActionCreated    = "created"
	ActionTransition = "status_changed"
	ActionUpdated    = "updated"
)

// AuditLog is one order event. It is stored in audit_logs and is also the
// JSON payload published to Kafka.
type AuditLog struct {
	EventID        string    `json:"eventId"`
	Timestamp      time.Time `json:"timestamp"`
	OrderID        string    `json:"orderId"`
	TrackingNumber string    `json:"trackingNumber"`
	OldStatus      string    `json:"oldStatus,omitempty"`
	NewStatus      string    `json:"newStatus"`
	ActorID        string    `json:"actorId"`
	ActorRole      string    `json:"actorRole"`
	Action         string    `json:"action"`
	Message        string    `json:"message,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a lexically sortable event id.
func NewEventID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type AuditPoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type AuditLogProcessor interface {
	Process(ctx context.Context, batch []AuditLog) error
}

type DBProcessor struct {
	db *sql.DB
}

func NewDBProcessor(db *sql.DB) *DBProcessor {
	return &DBProcessor{db: db}
}

func (p *DBProcessor) Process(ctx context.Context, batch []AuditLog) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO audit_logs (event_id, timestamp, order_id, tracking_number, old_status, new_status, actor_id, actor_role, action, message) VALUES `)

	const cols = 10
	params := make([]interface{}, 0, len(batch)*cols)
	paramIndex := 1
	for i, rec := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(fmt.Sprintf("$%d", paramIndex+c))
		}
		sb.WriteString(")")
		paramIndex += cols
		params = append(params, rec.EventID, rec.Timestamp, rec.OrderID, rec.TrackingNumber,
			rec.OldStatus, rec.NewStatus, rec.ActorID, rec.ActorRole, rec.Action, rec.Message)
	}
	sb.WriteString(" ON CONFLICT (event_id) DO NOTHING")
	if _, err := p.db.ExecContext(ctx, sb.String(), params...); err != nil {
		return fmt.Errorf("DBProcessor error: %w", err)
	}
	return nil
}

// LogProcessor writes audit records to the structured log, optionally keeping
// only records whose message or action contains Filter.
type LogProcessor struct {
	Log    *slog.Logger
	Filter string
}

func (p *LogProcessor) Process(_ context.Context, batch []AuditLog) error {
	for _, rec := range batch {
		if p.Filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message+" "+rec.Action), strings.ToLower(p.Filter)) {
			continue
		}
		p.Log.Info("audit",
			"event_id", rec.EventID,
			"order_id", rec.OrderID,
			"tracking_number", rec.TrackingNumber,
			"old_status", rec.OldStatus,
			"new_status", rec.NewStatus,
			"actor", rec.ActorID,
			"action", rec.Action,
		)
	}
	return nil
}

// OutboxProcessor turns each record into an outbox task for the Kafka publisher.
type OutboxProcessor struct {
	tasks repository.TaskRepository
}

func NewOutboxProcessor(tasks repository.TaskRepository) *OutboxProcessor {
	return &OutboxProcessor{tasks: tasks}
}

func (p *OutboxProcessor) Process(ctx context.Context, batch []AuditLog) error {
	for _, rec := range batch {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record %s: %w", rec.EventID, err)
		}
		if err := p.tasks.CreateTask(ctx, rec.EventID, rec.OrderID, payload); err != nil {
			return fmt.Errorf("OutboxProcessor error: %w", err)
		}
	}
	return nil
}

type AuditWorkerPool struct {
	inputCh    chan AuditLog
	processors []AuditLogProcessor
	batchSize  int
	timeout    time.Duration
	log        *slog.Logger

	wg sync.WaitGroup
}

const flushTimeout = 5 * time.Second

func NewAuditWorkerPool(cfg AuditPoolConfig, log *slog.Logger, processors ...AuditLogProcessor) *AuditWorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &AuditWorkerPool{
		inputCh:    make(chan AuditLog, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

func (p *AuditWorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *AuditWorkerPool) worker(ctx context.Context) {
	var batch []AuditLog
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			batch = p.drain(batch)
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
				p.processBatch(flushCtx, batch)
				cancel()
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				p.processBatch(ctx, batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(ctx, batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

// drain moves whatever is still buffered into batch without blocking.
func (p *AuditWorkerPool) drain(batch []AuditLog) []AuditLog {
	for {
		select {
		case rec := <-p.inputCh:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

func (p *AuditWorkerPool) processBatch(ctx context.Context, batch []AuditLog) {
	for _, proc := range p.processors {
		if err := proc.Process(ctx, batch); err != nil {
			p.log.Error("audit batch failed", "size", len(batch), "err", err)
		}
	}
}

// Log enqueues a record. It never blocks the caller; a full channel drops the record.
func (p *AuditWorkerPool) Log(record AuditLog) {
	select {
	case p.inputCh <- record:
	default:
		p.log.Warn("audit log channel full, dropping record", "event_id", record.EventID, "order_id", record.OrderID)
	}
}

func (p *AuditWorkerPool) Shutdown(cancelFunc context.CancelFunc) {
	cancelFunc()
	p.wg.Wait()
}
