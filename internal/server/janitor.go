package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FlowPruner deletes onboarding flows idle since before.
type FlowPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// ExpiredDeleter deletes expired session scopes.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Janitor periodically removes idle flows and expired session values.
type Janitor struct {
	Flows    FlowPruner
	Sessions ExpiredDeleter
	// MaxIdle is how long a flow may go without an update before it is pruned.
	MaxIdle  time.Duration
	Interval time.Duration
	Logger   *zap.Logger
}

// Run sweeps every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			j.Sweep(ctx, now)
		}
	}
}

// Sweep runs one cleanup pass. Failures are logged and retried on the next pass.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) {
	if j.Flows != nil {
		n, err := j.Flows.Prune(ctx, now.Add(-j.MaxIdle))
		if err != nil {
			j.Logger.Warn("janitor: prune flows", zap.Error(err))
		} else if n > 0 {
			j.Logger.Debug("janitor: pruned flows", zap.Int64("count", n))
		}
	}
	if j.Sessions != nil {
		n, err := j.Sessions.DeleteExpired(ctx)
		if err != nil {
			j.Logger.Warn("janitor: delete expired sessions", zap.Error(err))
		} else if n > 0 {
			j.Logger.Debug("janitor: deleted expired sessions", zap.Int64("count", n))
		}
	}
}
