package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/repository"
)

// AuditSink receives completed batches of audit entries.
type AuditSink interface {
	Persist(ctx context.Context, batch []AuditLogEntry) error
}

// OutboxSink stores each entry as an outbox task; the Kafka publisher picks
// them up from there.
type OutboxSink struct {
	repo  OutboxCreator
	topic string
}

type OutboxCreator interface {
	Create(ctx context.Context, task *repository.OutboxTask) error
}

func NewOutboxSink(repo OutboxCreator, topic string) *OutboxSink {
	return &OutboxSink{repo: repo, topic: topic}
}

func (s *OutboxSink) Persist(ctx context.Context, batch []AuditLogEntry) error {
	for _, entry := range batch {
		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		task := &repository.OutboxTask{
			ID:        uuid.New(),
			Status:    repository.TaskStatusCreated,
			Payload:   payload,
			Topic:     s.topic,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// LogSink writes batches straight to the service log. Used when no
// database-backed outbox is available (dev mode, tests).
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Persist(ctx context.Context, batch []AuditLogEntry) error {
	for _, entry := range batch {
		s.logger.Info("audit",
			zap.String("method", entry.Method),
			zap.String("path", entry.Path),
			zap.Int("status", entry.StatusCode),
			zap.String("actor", entry.ActorName))
	}
	return nil
}

// AuditManager batches audit entries off the request path: an aggregator
// groups entries by size or timeout and a small worker pool persists the
// batches. A full pipeline never blocks a request; entries fall back to the
// service log instead.
type AuditManager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	sink        AuditSink
	logger      *zap.Logger

	inputChan  chan AuditLogEntry
	batchChan  chan []AuditLogEntry
	shutdownCh chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

func NewAuditManager(workerCount, batchSize int, timeout time.Duration, sink AuditSink, logger *zap.Logger) *AuditManager {
	return &AuditManager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		sink:        sink,
		logger:      logger,
		inputChan:   make(chan AuditLogEntry, workerCount*batchSize*2),
		batchChan:   make(chan []AuditLogEntry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *AuditManager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.runAggregator(ctx)

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}
}

func (m *AuditManager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		close(m.shutdownCh)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			m.logger.Warn("audit manager shutdown interrupted")
		}
	})
}

// LogEntry enqueues one entry. Audit persistence is best-effort: if the
// pipeline is saturated or shutting down, the entry goes to the service log
// and the request proceeds. The shutdown check comes first because entries
// queued after the aggregator exits would never be drained.
func (m *AuditManager) LogEntry(ctx context.Context, entry AuditLogEntry) {
	select {
	case <-m.shutdownCh:
		m.emergencyLog(entry)
		return
	default:
	}

	select {
	case m.inputChan <- entry:
	default:
		m.emergencyLog(entry)
	}
}

func (m *AuditManager) runAggregator(ctx context.Context) {
	defer m.wg.Done()

	var (
		batch    []AuditLogEntry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				m.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			m.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			return

		case <-m.shutdownCh:
			return
		}
	}
}

func (m *AuditManager) dispatchBatch(batch []AuditLogEntry) {
	batchCopy := make([]AuditLogEntry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		for _, entry := range batchCopy {
			m.emergencyLog(entry)
		}
	}
}

func (m *AuditManager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	for {
		select {
		case batch, ok := <-m.batchChan:
			if !ok {
				return
			}
			m.persistBatch(ctx, batch)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case batch, ok := <-m.batchChan:
					if !ok {
						return
					}
					m.persistBatch(context.Background(), batch)
				default:
					return
				}
			}
		}
	}
}

func (m *AuditManager) persistBatch(ctx context.Context, batch []AuditLogEntry) {
	if err := m.sink.Persist(ctx, batch); err != nil {
		m.logger.Warn("failed to persist audit batch", zap.Int("size", len(batch)), zap.Error(err))
		for _, entry := range batch {
			m.emergencyLog(entry)
		}
	}
}

func (m *AuditManager) emergencyLog(entry AuditLogEntry) {
	m.logger.Info("audit (direct)",
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.StatusCode),
		zap.String("actor", entry.ActorName))
}
