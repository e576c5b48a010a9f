package executions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper prunes execution log entries older than the retention period on a
// cron schedule.
type Sweeper struct {
	store     *Store
	retention time.Duration
	schedule  string
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSweeper creates a sweeper. A zero retention keeps entries for 30 days.
func NewSweeper(store *Store, retention time.Duration, schedule string) *Sweeper {
	if retention == 0 {
		retention = 30 * 24 * time.Hour
	}
	if schedule == "" {
		schedule = "@hourly"
	}

	return &Sweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Start schedules the sweep. It returns an error for an invalid schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(s.schedule, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}

	c.Start()
	s.cron = c

	log.Info().
		Str("schedule", s.schedule).
		Dur("retention", s.retention).
		Msg("Execution log retention started")

	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// Sweep deletes entries older than the retention period.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	return s.store.DeleteOlderThan(ctx, cutoff)
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	removed, err := s.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old execution logs")
		return
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Pruned execution logs")
	}
}
