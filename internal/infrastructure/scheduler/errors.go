package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a run is requested from a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrSweepInProgress is returned when a manual run overlaps a scheduled one
	ErrSweepInProgress = errors.New("reconciliation sweep already in progress")
)
