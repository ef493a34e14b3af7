package notification

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// Emailer is the optional secondary delivery path. It queues one outbound
// mail per recipient with an address on file; everything about it is
// best-effort and isolated from the in-app channel.
type Emailer interface {
	EnqueueEmails(ctx context.Context, intent models.NotificationIntent, audience Audience)
}

type queueEmailer struct {
	jobs    repository.EmailJobRepository
	users   repository.UserRepository
	baseURL string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewQueueEmailer builds an Emailer that writes to the outbound email_jobs
// queue. ratePerSec throttles enqueueing so a large audience cannot slam
// the downstream transport; burst is 1 to keep the pacing even.
func NewQueueEmailer(
	jobs repository.EmailJobRepository,
	users repository.UserRepository,
	baseURL string,
	ratePerSec float64,
	logger zerolog.Logger,
) Emailer {
	if ratePerSec <= 0 {
		ratePerSec = 3
	}
	return &queueEmailer{
		jobs:    jobs,
		users:   users,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:  logger.With().Str("component", "emailer").Logger(),
	}
}

// EnqueueEmails walks the audience sequentially. Recipients without an
// email on file are skipped silently; per-recipient failures are logged
// and the loop continues.
func (e *queueEmailer) EnqueueEmails(ctx context.Context, intent models.NotificationIntent, audience Audience) {
	for recipientID, profile := range audience {
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn().Err(err).Str("intent_id", intent.ID).
				Msg("email enqueue interrupted")
			return
		}

		email, err := e.recipientEmail(recipientID, profile)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("intent_id", intent.ID).
				Str("recipient_id", recipientID).
				Msg("failed to look up recipient email")
			continue
		}
		if email == "" {
			continue
		}

		job := models.EmailJob{
			ID:           uuid.NewString(),
			ToEmail:      email,
			Subject:      intent.Title,
			HTML:         e.renderBody(intent, recipientID),
			IntentID:     intent.ID,
			RecipientID:  recipientID,
			OriginalLink: intent.Link,
		}
		if _, err := e.jobs.Enqueue(ctx, job); err != nil {
			e.logger.Warn().Err(err).
				Str("intent_id", intent.ID).
				Str("recipient_id", recipientID).
				Msg("failed to enqueue email job")
		}
	}
}

func (e *queueEmailer) recipientEmail(recipientID string, profile *models.User) (string, error) {
	if profile != nil {
		return strings.TrimSpace(profile.Email), nil
	}
	user, err := e.users.GetUserByID(recipientID)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(user.Email), nil
}

// renderBody builds the HTML body. When the intent carries a link, the
// anchor points at the tracking redirect instead of the raw destination.
func (e *queueEmailer) renderBody(intent models.NotificationIntent, recipientID string) string {
	body := strings.Builder{}
	body.WriteString(`<html><body style="font-family: sans-serif;">`)
	fmt.Fprintf(&body, "<h2>%s</h2>", html.EscapeString(intent.Title))
	fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(intent.Message))
	if intent.Link != "" {
		trackURL := TrackingURL(e.baseURL, intent.ID, recipientID)
		fmt.Fprintf(&body, `<p><a href="%s">View details</a></p>`, trackURL)
	}
	body.WriteString("</body></html>")
	return body.String()
}

// TrackingURL builds the click-tracking redirect link. The path and the
// two query parameter names are wire-visible: links already delivered in
// past emails encode them, so they must stay bit-exact.
func TrackingURL(baseURL, intentID, recipientID string) string {
	return fmt.Sprintf("%s/trackClick?intentId=%s&recipientId=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(intentID),
		url.QueryEscape(recipientID),
	)
}
