package notifications

import (
	"context"
	"fmt"

	"engagement-shop/internal/apperr"
)

// preferenceFor returns the stored preference or the defaults. Nothing is written.
func (s *Service) preferenceFor(ctx context.Context, userID string) (Preference, error) {
	pref, err := s.storage.GetPreference(ctx, userID)
	if err != nil {
		return Preference{}, fmt.Errorf("get preference: %w", err)
	}
	if pref == nil {
		return DefaultPreference(userID), nil
	}
	return *pref, nil
}

// GetPreferences returns the user's settings, persisting the defaults on first access.
func (s *Service) GetPreferences(ctx context.Context, userID string) (*Preference, error) {
	pref, err := s.storage.GetPreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	if pref != nil {
		return pref, nil
	}

	created, err := s.storage.UpsertPreference(ctx, DefaultPreference(userID))
	if err != nil {
		return nil, fmt.Errorf("create default preference: %w", err)
	}
	return created, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, userID string, update PreferenceUpdate) (*Preference, error) {
	pref, err := s.preferenceFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	applyBool(&pref.OrderUpdates, update.OrderUpdates)
	applyBool(&pref.Payments, update.Payments)
	applyBool(&pref.Support, update.Support)
	applyBool(&pref.Promotions, update.Promotions)
	applyBool(&pref.System, update.System)
	applyBool(&pref.InApp, update.InApp)
	applyBool(&pref.Email, update.Email)
	applyBool(&pref.Push, update.Push)

	if update.Frequency != nil {
		if !update.Frequency.Valid() {
			return nil, apperr.Validation("invalid frequency %q", *update.Frequency)
		}
		pref.Frequency = *update.Frequency
	}
	if update.QuietHours != nil {
		quiet := *update.QuietHours
		if quiet.Timezone == "" {
			quiet.Timezone = "UTC"
		}
		if err := quiet.Validate(); err != nil {
			return nil, apperr.Validation("quiet hours: %s", err)
		}
		pref.QuietHours = quiet
	}

	saved, err := s.storage.UpsertPreference(ctx, pref)
	if err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}

	s.logger.Info("Notification preferences updated", "user_id", userID)
	return saved, nil
}

// ResetPreferences drops the stored row and returns the defaults.
func (s *Service) ResetPreferences(ctx context.Context, userID string) (*Preference, error) {
	if err := s.storage.DeletePreference(ctx, userID); err != nil {
		return nil, fmt.Errorf("delete preference: %w", err)
	}
	return s.GetPreferences(ctx, userID)
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
