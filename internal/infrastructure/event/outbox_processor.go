package event

import (
	"context"
	"sync"
	"time"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	Workers          int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     2 * time.Second,
		Workers:          4,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// ProcessResult summarizes one processing round
type ProcessResult struct {
	Claimed int
	Sent    int
	Failed  int
	Dead    int
}

// TaskObserver receives the outcome of every processed cascade task
type TaskObserver interface {
	ObserveTask(ctx context.Context, eventType string, status shared.OutboxStatus, elapsed time.Duration)
}

// OutboxProcessor claims due cascade tasks and runs them through the dispatcher
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	dispatcher shared.EventDispatcher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	tracer     trace.Tracer
	observer   TaskObserver
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	dispatcher shared.EventDispatcher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultOutboxProcessorConfig().BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultOutboxProcessorConfig().PollInterval
	}
	return &OutboxProcessor{
		repo:       repo,
		dispatcher: dispatcher,
		serializer: serializer,
		config:     config,
		logger:     logger,
		tracer:     otel.Tracer("pharmaerp/outbox"),
		now:        time.Now,
	}
}

// SetObserver sets the observer notified after each task
func (p *OutboxProcessor) SetObserver(o TaskObserver) {
	p.observer = o
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled && p.config.CleanupInterval > 0 {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain while full batches keep coming
			for {
				result, err := p.ProcessOnce(ctx)
				if err != nil {
					p.logger.Error("failed to claim outbox entries", zap.Error(err))
					break
				}
				if result.Claimed < p.config.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessOnce claims one batch of due entries and processes it on a bounded
// worker pool. Handler failures are recorded on the entries, not returned.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (ProcessResult, error) {
	entries, err := p.repo.ClaimDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		return ProcessResult{}, err
	}

	var (
		mu     sync.Mutex
		result = ProcessResult{Claimed: len(entries)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for _, entry := range entries {
		g.Go(func() error {
			status := p.processEntry(gctx, entry)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case shared.OutboxStatusSent:
				result.Sent++
			case shared.OutboxStatusDead:
				result.Dead++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) shared.OutboxStatus {
	ctx, span := p.tracer.Start(ctx, "outbox.process "+entry.EventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event_id", entry.EventID.String()),
			attribute.String("aggregate_id", entry.AggregateID.String()),
			attribute.Int("retry_count", entry.RetryCount),
		),
	)
	defer span.End()

	start := p.now()
	defer func() {
		if p.observer != nil {
			p.observer.ObserveTask(ctx, entry.EventType, entry.Status, p.now().Sub(start))
		}
	}()

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.dispatcher.Dispatch(ctx, event)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.fail(ctx, entry, err)
		return entry.Status
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return entry.Status
	}
	p.logger.Debug("cascade task processed",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)
	return entry.Status
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error())
	if entry.IsDead() {
		p.logger.Error("cascade task moved to dead letter queue",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	} else {
		p.logger.Warn("cascade task failed, will retry",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount),
			zap.Timep("next_retry_at", entry.NextRetryAt),
			zap.Error(cause),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update entry", zap.Error(err))
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes SENT entries older than the retention window
func (p *OutboxProcessor) Cleanup(ctx context.Context) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}

// RetryDead moves a dead entry back to PENDING
func (p *OutboxProcessor) RetryDead(ctx context.Context, entry *shared.OutboxEntry) error {
	if err := entry.ResetForRetry(); err != nil {
		return shared.WrapDomainError(shared.CodeInvalidState, "cascade task is not dead", err)
	}
	return p.repo.Update(ctx, entry)
}
