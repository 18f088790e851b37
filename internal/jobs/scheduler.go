package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
}

type Scheduler struct {
	cron          *cron.Cron
	queue         Enqueuer
	purgeSchedule string
	log           zerolog.Logger
}

func NewScheduler(queue Enqueuer, purgeSchedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:          c,
		queue:         queue,
		purgeSchedule: purgeSchedule,
		log:           log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.purgeSchedule, s.enqueuePurge); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.purgeSchedule).Msg("token purge scheduled")
	return nil
}

// Stop waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueuePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.queue.Enqueue(ctx, PurgeRefreshTokens()); err != nil {
		s.log.Error().Err(err).Msg("enqueue token purge failed")
	}
}
