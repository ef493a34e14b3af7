package notification

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/repository"
)

var (
	// ErrEmptyAudience rejects intents that target neither users nor groups.
	ErrEmptyAudience = errors.New("audience must target at least one user or group")
	// ErrMissingContent rejects intents with a blank title or message.
	ErrMissingContent = errors.New("title and message are required")
)

// Author identifies who created an intent. Authentication and role checks
// happen upstream; the service only records the identity on the audit row.
type Author struct {
	ID   string
	Role models.UserRole
}

type CreateIntentInput struct {
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	Priority    models.Priority     `json:"priority"`
	Link        string              `json:"link"`
	Audience    models.AudienceSpec `json:"audience"`
	SendEmail   bool                `json:"send_email"`
	ScheduledAt *time.Time          `json:"scheduled_at"`
	DryRun      bool                `json:"dry_run"`
}

type CreateResult struct {
	ID         string `json:"id,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Recipients int    `json:"recipients"`
}

type ResendOptions struct {
	// SendEmail overrides the stored email-channel flag when set.
	SendEmail *bool `json:"send_email"`
	DryRun    bool  `json:"dry_run"`
}

// Service owns the notification lifecycle: authoring the audit record,
// fanning out to the resolved audience, and replaying delivery on demand.
type Service interface {
	// CreateIntent validates and persists an intent (audit-first), then
	// delivers immediately when no future schedule is set. With DryRun it
	// resolves the audience and returns the count without any write.
	CreateIntent(ctx context.Context, input CreateIntentInput, author Author) (CreateResult, error)
	// Deliver fans one intent out to its resolved audience: one idempotent
	// delivery row per recipient written atomically, then a best-effort
	// counter bump and an asynchronous email handoff. It does not touch
	// sent_at; callers own that guard.
	Deliver(ctx context.Context, intent models.NotificationIntent, sendEmail bool) (int, error)
	// Resend replays fan-out for a stored intent, bypassing the sent_at
	// guard. sent_count accumulates across waves; sent_at is unchanged.
	Resend(ctx context.Context, intentID string, opts ResendOptions) (int, error)
	GetIntent(ctx context.Context, intentID string) (models.NotificationIntent, error)
	ListRecent(ctx context.Context, limit int) ([]models.NotificationIntent, error)
	Stats(ctx context.Context, intentID string) (models.IntentStat, error)
}

type service struct {
	intents    repository.IntentRepository
	deliveries repository.DeliveryRepository
	resolver   AudienceResolver
	emailer    Emailer
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	intents repository.IntentRepository,
	deliveries repository.DeliveryRepository,
	resolver AudienceResolver,
	emailer Emailer,
	logger zerolog.Logger,
) Service {
	return &service{
		intents:    intents,
		deliveries: deliveries,
		resolver:   resolver,
		emailer:    emailer,
		logger:     logger.With().Str("component", "notification_service").Logger(),
		now:        time.Now,
	}
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput, author Author) (CreateResult, error) {
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	if title == "" || message == "" {
		return CreateResult{}, ErrMissingContent
	}
	if input.Audience.IsEmpty() {
		return CreateResult{}, ErrEmptyAudience
	}

	if input.DryRun {
		audience, err := s.resolver.Resolve(ctx, input.Audience)
		if err != nil {
			return CreateResult{}, err
		}
		return CreateResult{DryRun: true, Recipients: len(audience)}, nil
	}

	intent := models.NotificationIntent{
		ID:            uuid.NewString(),
		Title:         title,
		Message:       message,
		Priority:      models.NormalizePriority(input.Priority),
		Link:          strings.TrimSpace(input.Link),
		Audience:      input.Audience,
		Channels:      models.Channels{InApp: true, Email: input.SendEmail},
		ScheduledAt:   input.ScheduledAt,
		CreatedBy:     author.ID,
		CreatedByRole: author.Role,
	}

	created, err := s.intents.Create(ctx, intent)
	if err != nil {
		return CreateResult{}, err
	}

	result := CreateResult{ID: created.ID}

	// Audit row exists either way; if immediate delivery fails here the
	// poller retries on its next cycle, and the deterministic delivery
	// keys make that retry safe.
	if created.Due(s.now()) {
		recipients, err := s.deliverAndMarkSent(ctx, created)
		if err != nil {
			s.logger.Error().Err(err).Str("intent_id", created.ID).
				Msg("immediate delivery failed, leaving intent for the poller")
			return result, nil
		}
		result.Recipients = recipients
	}

	return result, nil
}

// deliverAndMarkSent is the guarded delivery path shared by immediate
// delivery and the scheduler: fan out, then claim sent_at.
func (s *service) deliverAndMarkSent(ctx context.Context, intent models.NotificationIntent) (int, error) {
	recipients, err := s.Deliver(ctx, intent, intent.Channels.Email)
	if err != nil {
		return 0, err
	}
	claimed, err := s.intents.MarkSent(ctx, intent.ID, s.now())
	if err != nil {
		return recipients, err
	}
	if !claimed {
		s.logger.Warn().Str("intent_id", intent.ID).
			Msg("intent already marked sent by a concurrent path")
	}
	return recipients, nil
}

func (s *service) Deliver(ctx context.Context, intent models.NotificationIntent, sendEmail bool) (int, error) {
	audience, err := s.resolver.Resolve(ctx, intent.Audience)
	if err != nil {
		return 0, err
	}

	now := s.now()
	deliveries := make([]models.Delivery, 0, len(audience))
	for recipientID := range audience {
		deliveries = append(deliveries, models.Delivery{
			ID:          models.DeliveryID(intent.ID, recipientID),
			IntentID:    intent.ID,
			RecipientID: recipientID,
			Title:       intent.Title,
			Message:     intent.Message,
			Priority:    intent.Priority,
			Link:        intent.Link,
			DeliveredAt: now,
		})
	}

	if err := s.deliveries.CreateBatch(ctx, deliveries); err != nil {
		return 0, errors.Wrap(err, "fan-out delivery batch")
	}

	// The counter is an approximation, not a correctness invariant; a
	// failure here must not roll back the committed wave.
	if err := s.intents.IncrementSentCount(ctx, intent.ID, int64(len(deliveries))); err != nil {
		s.logger.Warn().Err(err).Str("intent_id", intent.ID).
			Msg("failed to increment sent count")
	}

	if sendEmail && s.emailer != nil {
		// Fire-and-forget: the email side channel never shares a failure
		// domain with the in-app channel of record.
		go s.emailer.EnqueueEmails(context.WithoutCancel(ctx), intent, audience)
	}

	s.logger.Info().
		Str("intent_id", intent.ID).
		Int("recipients", len(deliveries)).
		Bool("email", sendEmail).
		Msg("fan-out complete")

	return len(deliveries), nil
}

func (s *service) Resend(ctx context.Context, intentID string, opts ResendOptions) (int, error) {
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return 0, err
	}

	sendEmail := intent.Channels.Email
	if opts.SendEmail != nil {
		sendEmail = *opts.SendEmail
	}

	if opts.DryRun {
		audience, err := s.resolver.Resolve(ctx, intent.Audience)
		if err != nil {
			return 0, err
		}
		return len(audience), nil
	}

	return s.Deliver(ctx, intent, sendEmail)
}

func (s *service) GetIntent(ctx context.Context, intentID string) (models.NotificationIntent, error) {
	return s.intents.GetByID(ctx, intentID)
}

func (s *service) ListRecent(ctx context.Context, limit int) ([]models.NotificationIntent, error) {
	return s.intents.ListRecent(ctx, limit)
}

func (s *service) Stats(ctx context.Context, intentID string) (models.IntentStat, error) {
	return s.deliveries.Stats(ctx, intentID)
}
