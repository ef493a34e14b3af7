package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/authz"
	"github.com/beaconhq/beacon-api/internal/repository"
)

// InboxHandler serves the signed-in user's own delivery records. Read
// receipts set here are the in-app analytics path; email clicks go
// through the tracking redirect instead.
type InboxHandler struct {
	deliveries repository.DeliveryRepository
	logger     zerolog.Logger
}

func NewInboxHandler(deliveries repository.DeliveryRepository, logger zerolog.Logger) *InboxHandler {
	return &InboxHandler{
		deliveries: deliveries,
		logger:     logger.With().Str("handler", "inbox").Logger(),
	}
}

func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	deliveries, err := h.deliveries.ListByRecipient(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list inbox")
		http.Error(w, "Failed to list inbox", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
	})
}

func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	deliveryID := strings.TrimSpace(mux.Vars(r)["deliveryID"])
	if deliveryID == "" {
		http.Error(w, "Delivery ID is required", http.StatusBadRequest)
		return
	}

	delivery, err := h.deliveries.MarkRead(r.Context(), userID, deliveryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Delivery not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("delivery_id", deliveryID).Msg("failed to mark delivery read")
		http.Error(w, "Failed to update delivery", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, delivery)
}
