package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/notification"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// MailWorker drains the outbound email queue and hands each job to the
// SMTP mailer. It is the transport end of the side channel: a jam here
// never touches in-app deliveries.
type MailWorker struct {
	jobs         repository.EmailJobRepository
	mailer       notification.Mailer
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewMailWorker(
	jobs repository.EmailJobRepository,
	mailer notification.Mailer,
	pollInterval time.Duration,
	logger zerolog.Logger,
) *MailWorker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &MailWorker{
		jobs:         jobs,
		mailer:       mailer,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "mail_worker").Logger(),
	}
}

// Start runs until the context is cancelled, polling for pending jobs.
func (w *MailWorker) Start(ctx context.Context) error {
	w.logger.Info().Dur("interval", w.pollInterval).Msg("mail worker started")
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("mail worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain sends every pending job it can claim, stopping when the queue is
// empty or the context ends. Failures are per-job; the loop continues.
func (w *MailWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := w.jobs.ClaimNextPending(ctx)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				w.logger.Error().Err(err).Msg("failed to claim email job")
			}
			return
		}

		if err := w.mailer.Send(job); err != nil {
			w.logger.Warn().Err(err).
				Str("job_id", job.ID).
				Str("intent_id", job.IntentID).
				Str("recipient_id", job.RecipientID).
				Msg("failed to send email")
			if err := w.jobs.MarkFailed(ctx, job.ID); err != nil {
				w.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark email job failed")
			}
			continue
		}

		if err := w.jobs.MarkSent(ctx, job.ID); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark email job sent")
			continue
		}

		w.logger.Info().
			Str("job_id", job.ID).
			Str("intent_id", job.IntentID).
			Str("recipient_id", job.RecipientID).
			Msg("email sent")
	}
}
