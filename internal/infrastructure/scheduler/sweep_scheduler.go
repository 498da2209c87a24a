package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// RunStatus represents the outcome of one sweep run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// Run records one sweep execution
type Run struct {
	Since       time.Time
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SweepFunc checks and repairs every sheet dated on or after since
type SweepFunc func(ctx context.Context, since time.Time) error

// SweepConfig holds reconciliation sweep scheduling
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	// Lookback bounds how far back sheet dates are inspected
	Lookback time.Duration
	// Timeout caps one run; zero means Interval
	Timeout time.Duration
}

// DefaultSweepConfig returns the default sweep schedule
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Enabled:  true,
		Interval: 15 * time.Minute,
		Lookback: 7 * 24 * time.Hour,
	}
}

// Validate checks the configuration
func (c SweepConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be positive", ErrInvalidConfig)
	}
	return nil
}

// SweepScheduler runs the reconciliation sweep on a fixed interval. Runs never
// overlap; a tick that fires while a sweep is still going is skipped.
type SweepScheduler struct {
	config SweepConfig
	sweep  SweepFunc
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cron      gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	inFlight  bool
	last      *Run
}

// NewSweepScheduler creates a new sweep scheduler
func NewSweepScheduler(config SweepConfig, sweep SweepFunc, logger *zap.Logger) (*SweepScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	return &SweepScheduler{
		config: config,
		sweep:  sweep,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start registers the sweep job and starts ticking. The first sweep runs
// immediately.
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning || !s.config.Enabled {
		return nil
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	_, err = cron.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			if err := s.RunNow(s.ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.Error("scheduled reconciliation sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("reconciliation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		_ = cron.Shutdown()
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	cron.Start()
	s.cron = cron
	s.isRunning = true

	s.logger.Info("Reconciliation sweep scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("lookback", s.config.Lookback),
	)
	return nil
}

// Stop cancels the running sweep and waits for the scheduler to drain
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cron := s.cron
	s.cancel()
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- cron.Shutdown() }()

	select {
	case err := <-done:
		s.logger.Info("Reconciliation sweep scheduler stopped")
		return err
	case <-ctx.Done():
		s.logger.Warn("Reconciliation sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow runs one sweep synchronously over the configured lookback
func (s *SweepScheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrSweepInProgress
	}
	s.inFlight = true
	run := &Run{
		Since:     s.now().Add(-s.config.Lookback),
		Status:    RunStatusRunning,
		StartedAt: s.now(),
	}
	s.last = run
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err := s.sweep(ctx, run.Since)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	completed := s.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
		return err
	}
	run.Status = RunStatusSuccess
	s.logger.Debug("Reconciliation sweep finished",
		zap.Time("since", run.Since),
		zap.Duration("duration", completed.Sub(run.StartedAt)),
	)
	return nil
}

// LastRun returns a copy of the most recent run, or nil before the first one
func (s *SweepScheduler) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	run := *s.last
	return &run
}

// IsRunning reports whether the scheduler is ticking
func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
