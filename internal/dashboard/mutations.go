package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ycagraoglu/PulseMetric-sub001/internal/apiclient"
	"github.com/ycagraoglu/PulseMetric-sub001/internal/querycache"
)

// Mutation names a write the dashboard can perform.
type Mutation int

const (
	MutationCreateAPIKey Mutation = iota
	MutationDeleteAPIKey
	MutationUpdateSettings

	mutationCount
)

func (m Mutation) String() string {
	switch m {
	case MutationCreateAPIKey:
		return "create_api_key"
	case MutationDeleteAPIKey:
		return "delete_api_key"
	case MutationUpdateSettings:
		return "update_settings"
	default:
		return fmt.Sprintf("mutation(%d)", int(m))
	}
}

// Mutations lists every mutation.
func Mutations() []Mutation {
	out := make([]Mutation, 0, mutationCount)
	for m := Mutation(0); m < mutationCount; m++ {
		out = append(out, m)
	}
	return out
}

// InvalidationTable maps each mutation to the key prefixes it makes stale
// for the given app.
var InvalidationTable = map[Mutation]func(appID string) []querycache.Key{
	MutationCreateAPIKey: func(appID string) []querycache.Key {
		return []querycache.Key{APIKeysKey(appID)}
	},
	MutationDeleteAPIKey: func(appID string) []querycache.Key {
		return []querycache.Key{APIKeysKey(appID)}
	},
	// The app name is part of the settings, so the app picker goes stale too.
	MutationUpdateSettings: func(appID string) []querycache.Key {
		return []querycache.Key{SettingsKey(appID), AppsKey()}
	},
}

var (
	ErrNameRequired    = errors.New("name is required")
	ErrInvalidSettings = errors.New("invalid settings")
)

func (s *Service) invalidate(m Mutation, appID string) {
	prefixes, ok := InvalidationTable[m]
	if !ok {
		s.log.WithField("mutation", m.String()).Error("mutation has no invalidation entry")
		return
	}
	n := 0
	for _, k := range prefixes(appID) {
		n += s.cache.Invalidate(k)
	}
	s.log.WithFields(logrus.Fields{
		"mutation": m.String(),
		"app":      appID,
		"entries":  n,
	}).Debug("invalidated cache entries")
}

// CreateAPIKey creates a key and invalidates the app's key list. The returned
// key carries the full secret, which the backend only reveals once.
func (s *Service) CreateAPIKey(ctx context.Context, appID, name string) (apiclient.APIKey, error) {
	if appID == "" {
		return apiclient.APIKey{}, ErrNoApp
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return apiclient.APIKey{}, ErrNameRequired
	}

	key, err := s.backend.CreateAPIKey(ctx, appID, apiclient.CreateAPIKeyRequest{Name: name})
	if err != nil {
		return apiclient.APIKey{}, fmt.Errorf("creating api key: %w", err)
	}
	s.invalidate(MutationCreateAPIKey, appID)
	return key, nil
}

func (s *Service) DeleteAPIKey(ctx context.Context, appID, keyID string) error {
	if appID == "" {
		return ErrNoApp
	}
	if err := s.backend.DeleteAPIKey(ctx, appID, keyID); err != nil {
		return fmt.Errorf("deleting api key %s: %w", keyID, err)
	}
	s.invalidate(MutationDeleteAPIKey, appID)
	return nil
}

// UpdateSettings saves settings and stores the backend's answer as the fresh
// settings entry.
func (s *Service) UpdateSettings(ctx context.Context, appID string, in apiclient.Settings) (apiclient.Settings, error) {
	if appID == "" {
		return apiclient.Settings{}, ErrNoApp
	}
	if err := ValidateSettings(in); err != nil {
		return apiclient.Settings{}, err
	}

	out, err := s.backend.UpdateSettings(ctx, appID, in)
	if err != nil {
		return apiclient.Settings{}, fmt.Errorf("updating settings: %w", err)
	}
	s.invalidate(MutationUpdateSettings, appID)
	querycache.Set(s.cache, s.Settings(appID), out)
	return out, nil
}

func ValidateSettings(in apiclient.Settings) error {
	switch {
	case strings.TrimSpace(in.AppName) == "":
		return fmt.Errorf("%w: app name is required", ErrInvalidSettings)
	case in.RetentionDays < 1:
		return fmt.Errorf("%w: retention must be at least one day", ErrInvalidSettings)
	case in.SessionTimeout < 1:
		return fmt.Errorf("%w: session timeout must be at least one minute", ErrInvalidSettings)
	}
	return nil
}
