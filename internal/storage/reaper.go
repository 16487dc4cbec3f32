package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Expirer interface {
	Expire(ctx context.Context, ttl time.Duration) (int, error)
}

// Reaper periodically expires calls that never reached an end state.
type Reaper struct {
	cron   *cron.Cron
	store  Expirer
	ttl    time.Duration
	logger *zap.Logger
}

func NewReaper(store Expirer, ttl, interval time.Duration, logger *zap.Logger) (*Reaper, error) {
	if ttl <= 0 || interval <= 0 {
		return nil, fmt.Errorf("reaper: ttl and interval must be positive, got %s and %s", ttl, interval)
	}

	r := &Reaper{
		cron:   cron.New(),
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
	if _, err := r.cron.AddFunc("@every "+interval.String(), r.RunOnce); err != nil {
		return nil, fmt.Errorf("reaper: scheduling: %w", err)
	}
	return r, nil
}

// Start runs the schedule until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	r.cron.Start()
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
}

// Stop halts the schedule and waits for a running expiry to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) RunOnce() {
	n, err := r.store.Expire(context.Background(), r.ttl)
	if err != nil {
		r.logger.Error("Failed to persist expired transcripts", zap.Error(err))
	}
	if n > 0 {
		r.logger.Info("Expired abandoned calls", zap.Int("calls", n), zap.Duration("ttl", r.ttl))
	}
}
