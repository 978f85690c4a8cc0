package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/isdelr/skycast-be/internal/apperror"
	"github.com/isdelr/skycast-be/internal/models"
	"github.com/rs/zerolog/log"
)

// SettingsPatch holds the settings fields a client may change.
type SettingsPatch struct {
	TemperatureUnit *models.TemperatureUnit `json:"temperatureUnit,omitempty"`
	Notifications   *bool                   `json:"notifications,omitempty"`
}

// PreferencesPatch is the only shape accepted for preference updates. Identity
// and credential fields have no place in it.
type PreferencesPatch struct {
	PreferredCity *string        `json:"preferredCity,omitempty"`
	Settings      *SettingsPatch `json:"settings,omitempty"`
}

// ProfileServiceProvider defines the interface for profile services.
type ProfileServiceProvider interface {
	GetProfile(ctx context.Context, accountID string) (models.Account, error)
	UpdatePreferences(ctx context.Context, accountID string, patch PreferencesPatch) (models.Account, error)
	RecentActivity(ctx context.Context, accountID string, limit int) ([]models.Event, error)
}

// ProfileService reads and updates the preference fields of an account.
type ProfileService struct {
	store  AccountStore
	events EventServiceProvider
}

// NewProfileService creates a new ProfileService.
func NewProfileService(store AccountStore, events EventServiceProvider) *ProfileService {
	return &ProfileService{store: store, events: events}
}

// GetProfile returns the account without secrets.
func (s *ProfileService) GetProfile(ctx context.Context, accountID string) (models.Account, error) {
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return account.Sanitized(), nil
}

// UpdatePreferences merge-patches the preferred city and settings. An empty
// city clears it.
func (s *ProfileService) UpdatePreferences(ctx context.Context, accountID string, patch PreferencesPatch) (models.Account, error) {
	var ap models.AccountPatch

	if patch.PreferredCity != nil {
		if city := strings.TrimSpace(*patch.PreferredCity); city == "" {
			ap.ClearCity = true
		} else {
			ap.PreferredCity = &city
		}
	}
	if patch.Settings != nil {
		if unit := patch.Settings.TemperatureUnit; unit != nil {
			if !unit.Valid() {
				return models.Account{}, apperror.NewValidation(fmt.Sprintf("temperatureUnit must be %q or %q", models.Celsius, models.Fahrenheit))
			}
			ap.TemperatureUnit = unit
		}
		ap.Notifications = patch.Settings.Notifications
	}

	account, err := s.store.Update(ctx, accountID, ap)
	if err != nil {
		return models.Account{}, err
	}

	if !ap.Empty() && s.events != nil {
		if err := s.events.CreateEvent(ctx, EventPreferencesUpdate, "info", "Preferences updated.", &accountID); err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("Failed to record account event")
		}
	}
	return account.Sanitized(), nil
}

// RecentActivity returns the latest events for the account, newest first.
func (s *ProfileService) RecentActivity(ctx context.Context, accountID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	events, err := s.events.GetRecentEvents(ctx, accountID, limit)
	if err != nil {
		return nil, apperror.NewInternal("Failed to retrieve activity", err)
	}
	return events, nil
}
