package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/auth"
	"github.com/isdelr/skycast-be/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles the authenticated account's profile.
type UserHandler struct {
	service services.ProfileServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.ProfileServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// GetProfile returns the account the bearer token was issued for.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve account ID from context")
		writeError(w, r, apperror.NewUnauthorized("Missing auth token", nil))
		return
	}

	account, err := h.service.GetProfile(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdatePreferences patches the preferred city and settings. Any other field
// in the body is rejected.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.NewUnauthorized("Missing auth token", nil))
		return
	}

	var patch services.PreferencesPatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.service.UpdatePreferences(r.Context(), accountID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetActivity returns the account's recent events.
func (h *UserHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.NewUnauthorized("Missing auth token", nil))
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	events, err := h.service.RecentActivity(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
