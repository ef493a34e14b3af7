package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/authz"
	"github.com/beaconhq/beacon-api/internal/models"
	"github.com/beaconhq/beacon-api/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

// Create authors a new notification intent. Role enforcement happens in
// the route middleware; here we only record who authored it.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}
	roles, _ := authz.RolesFromRequest(r)

	var input notification.CreateIntentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	author := notification.Author{ID: userID, Role: models.HighestRole(roles)}
	result, err := h.service.CreateIntent(r.Context(), input, author)
	if err != nil {
		switch {
		case errors.Is(err, notification.ErrMissingContent),
			errors.Is(err, notification.ErrEmptyAudience):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, notification.ErrNoRecipients):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error().Err(err).Msg("failed to create notification intent")
			http.Error(w, "Failed to create notification", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusCreated
	if result.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Resend replays delivery for an existing intent. Admin-only by route
// middleware; this is the one path allowed to bypass the sent_at guard.
func (h *NotificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	intentID := strings.TrimSpace(mux.Vars(r)["intentID"])
	if intentID == "" {
		http.Error(w, "Intent ID is required", http.StatusBadRequest)
		return
	}

	var opts notification.ResendOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
	}

	recipients, err := h.service.Resend(r.Context(), intentID, opts)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "Notification not found", http.StatusNotFound)
		case errors.Is(err, notification.ErrNoRecipients):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error().Err(err).Str("intent_id", intentID).Msg("failed to resend notification")
			http.Error(w, "Failed to resend notification", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intent_id":  intentID,
		"recipients": recipients,
		"dry_run":    opts.DryRun,
	})
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	intents, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": intents,
	})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	intentID := strings.TrimSpace(mux.Vars(r)["intentID"])
	intent, err := h.service.GetIntent(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("intent_id", intentID).Msg("failed to load notification")
		http.Error(w, "Failed to load notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	intentID := strings.TrimSpace(mux.Vars(r)["intentID"])
	stats, err := h.service.Stats(r.Context(), intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("intent_id", intentID).Msg("failed to load notification stats")
		http.Error(w, "Failed to load notification stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
