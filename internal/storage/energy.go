package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Regenerator tops up player energy at each quarter hour (:00, :15,
// :30, :45), one unit at a time up to the configured maximum.
type Regenerator struct {
	store     *Store
	logger    *zap.Logger
	maxEnergy int
	increment int
}

func NewRegenerator(store *Store, maxEnergy int, logger *zap.Logger) *Regenerator {
	return &Regenerator{
		store:     store,
		logger:    logger,
		maxEnergy: maxEnergy,
		increment: 1,
	}
}

// nextQuarter returns the next quarter-hour boundary after now.
func nextQuarter(now time.Time) time.Time {
	return now.Truncate(15 * time.Minute).Add(15 * time.Minute)
}

// Run blocks until ctx is cancelled, re-energizing on the quarter-hour
// schedule. Errors are logged and the loop keeps going.
func (r *Regenerator) Run(ctx context.Context) {
	r.logger.Info("energy regeneration loop started", zap.Int("max_energy", r.maxEnergy))

	for {
		wait := time.Until(nextQuarter(time.Now()))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		updated, err := r.store.RestoreEnergy(ctx, r.maxEnergy, r.increment)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("energy regeneration cycle failed", zap.Error(err))
			continue
		}
		r.logger.Info("energy regeneration cycle complete", zap.Int64("users", updated))
	}
}
