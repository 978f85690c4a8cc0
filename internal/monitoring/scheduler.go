package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TokenSweeper deletes reset tokens that expired before now.
type TokenSweeper interface {
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// EventRecorder records a system event.
type EventRecorder interface {
	CreateEvent(ctx context.Context, eventType, level, message string, accountID *string) error
}

// Sweeper clears expired password reset tokens on a cron schedule.
type Sweeper struct {
	store    TokenSweeper
	events   EventRecorder
	schedule cron.Schedule
	interval time.Duration
	now      func() time.Time
	nextRun  time.Time
	done     chan struct{}
	stopped  chan struct{}
}

// NewSweeper creates a sweeper for a standard five-field cron expression.
func NewSweeper(store TokenSweeper, events EventRecorder, spec string) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{
		store:    store,
		events:   events,
		schedule: schedule,
		interval: time.Minute,
		now:      time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Run starts the sweeper's ticking loop. It returns after Stop is called.
func (s *Sweeper) Run() {
	defer close(s.stopped)
	log.Info().Msg("Starting reset token sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.Sweep(context.Background())
	s.nextRun = s.schedule.Next(s.now())

	for {
		select {
		case <-s.done:
			log.Info().Msg("Stopping reset token sweeper")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop halts the sweeper and waits for Run to return.
func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
}

func (s *Sweeper) tick() {
	now := s.now()
	if now.Before(s.nextRun) {
		return
	}
	s.Sweep(context.Background())
	s.nextRun = s.schedule.Next(now)
}

// Sweep clears expired reset tokens once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.store.DeleteExpiredResetTokens(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("Sweeper: failed to clear expired reset tokens")
		return 0
	}
	if n > 0 {
		log.Info().Int64("cleared", n).Msg("Sweeper: cleared expired reset tokens")
		if s.events != nil {
			msg := fmt.Sprintf("Cleared %d expired password reset token(s).", n)
			if err := s.events.CreateEvent(ctx, "system.reset_token.sweep", "info", msg, nil); err != nil {
				log.Error().Err(err).Msg("Failed to record sweep event")
			}
		}
	}
	return n
}
