package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives the poller on a fixed cron spec. There is no external
// trigger: time is the only input.
type Scheduler struct {
	cron   *cron.Cron
	poller *Poller
	logger zerolog.Logger
}

func New(poller *Poller, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		poller: poller,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the poll job and begins ticking. spec accepts standard
// cron entries and @every durations, e.g. "@every 1m".
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@every 1m"
	}
	_, err := s.cron.AddFunc(spec, func() {
		s.poller.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("spec", spec).Msg("scheduler started")
	return nil
}

// Stop halts the ticker and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("scheduler stopped")
}
