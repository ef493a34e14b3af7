package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/notification"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// Poller is the due-intent scanner: every cycle it finds intents that have
// never been sent and whose scheduled time is absent or has passed, and
// fans each one out.
//
// The model is at-least-once with idempotent effect. sent_at is set only
// after a successful fan-out, so a crash in between causes a duplicate
// wave on the next cycle; delivery rows are keyed {intentId}_{recipientId}
// and upserted, so the duplicate overwrites instead of double-delivering.
type Poller struct {
	intents repository.IntentRepository
	service notification.Service
	logger  zerolog.Logger
	now     func() time.Time
}

func NewPoller(intents repository.IntentRepository, service notification.Service, logger zerolog.Logger) *Poller {
	return &Poller{
		intents: intents,
		service: service,
		logger:  logger.With().Str("component", "intent_poller").Logger(),
		now:     time.Now,
	}
}

// RunOnce executes a single poll cycle. Failures are isolated per intent:
// one bad intent never blocks the rest of the cycle.
func (p *Poller) RunOnce(ctx context.Context) {
	due, err := p.intents.ListDue(ctx, p.now())
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list due intents")
		return
	}
	if len(due) == 0 {
		return
	}

	p.logger.Info().Int("due", len(due)).Msg("processing due intents")

	for _, intent := range due {
		if ctx.Err() != nil {
			return
		}
		if err := p.deliverOne(ctx, intent); err != nil {
			// Leave the intent unsent; deterministic delivery keys make
			// the retry on the next cycle safe.
			p.logger.Error().Err(err).
				Str("intent_id", intent.ID).
				Msg("failed to deliver due intent")
		}
	}
}

func (p *Poller) deliverOne(ctx context.Context, intent models.NotificationIntent) error {
	recipients, err := p.service.Deliver(ctx, intent, intent.Channels.Email)
	if err != nil {
		return err
	}

	claimed, err := p.intents.MarkSent(ctx, intent.ID, p.now())
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Warn().Str("intent_id", intent.ID).
			Msg("intent was marked sent by a concurrent path")
		return nil
	}

	p.logger.Info().
		Str("intent_id", intent.ID).
		Int("recipients", recipients).
		Msg("scheduled intent delivered")
	return nil
}
