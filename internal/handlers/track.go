package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// TrackHandler is the public click-tracking redirect. It is the only write
// path for email-sourced click analytics, and it never answers with an
// error status: broken analytics must not break the user's navigation, so
// every fault degrades to a redirect to the fallback destination.
type TrackHandler struct {
	deliveries  repository.DeliveryRepository
	fallbackURL string
	logger      zerolog.Logger
}

func NewTrackHandler(deliveries repository.DeliveryRepository, fallbackURL string, logger zerolog.Logger) *TrackHandler {
	if fallbackURL == "" {
		fallbackURL = "/"
	}
	return &TrackHandler{
		deliveries:  deliveries,
		fallbackURL: fallbackURL,
		logger:      logger.With().Str("handler", "track").Logger(),
	}
}

// TrackClick handles GET /trackClick?intentId=...&recipientId=... — the
// parameter names are wire-exact; links in already-sent emails encode them.
func (h *TrackHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	intentID := strings.TrimSpace(r.URL.Query().Get("intentId"))
	recipientID := strings.TrimSpace(r.URL.Query().Get("recipientId"))
	if intentID == "" || recipientID == "" {
		http.Redirect(w, r, h.fallbackURL, http.StatusFound)
		return
	}

	deliveryID := models.DeliveryID(intentID, recipientID)
	delivery, err := h.deliveries.MarkClicked(r.Context(), deliveryID, "email")
	if err != nil {
		h.logger.Debug().Err(err).Str("delivery_id", deliveryID).Msg("click on unknown delivery")
		http.Redirect(w, r, h.fallbackURL, http.StatusFound)
		return
	}

	target := delivery.Link
	if target == "" {
		target = h.fallbackURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}
