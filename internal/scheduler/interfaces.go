package scheduler

//go:generate mockgen -destination=mock_scheduler.go -package=scheduler presenced/internal/scheduler Clock,Ticker,Runner

import (
	"context"
	"time"

	"presenced/internal/service"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Runner executes one presence cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*service.CycleReport, error)
}
