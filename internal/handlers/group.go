package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-api/internal/repository"
)

// GroupHandler manages recipient groups, the unit of audience targeting.
type GroupHandler struct {
	groups repository.GroupRepository
	users  repository.UserRepository
	logger zerolog.Logger
}

func NewGroupHandler(groups repository.GroupRepository, users repository.UserRepository, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		users:  users,
		logger: logger.With().Str("handler", "group").Logger(),
	}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		http.Error(w, "Group name is required", http.StatusBadRequest)
		return
	}

	group, err := h.groups.CreateGroup(name)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create group")
		http.Error(w, "Failed to create group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.ListGroups()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list groups")
		http.Error(w, "Failed to list groups", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	if _, err := h.groups.GetGroupByID(groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Group not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load group", http.StatusInternalServerError)
		return
	}

	members, err := h.users.ListUsersByGroup(groupID)
	if err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to list group members")
		http.Error(w, "Failed to list group members", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.UserID) == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.groups.AddMember(groupID, payload.UserID); err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("failed to add group member")
		http.Error(w, "Failed to add group member", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.groups.RemoveMember(vars["groupID"], vars["userID"]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Membership not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to remove group member")
		http.Error(w, "Failed to remove group member", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
