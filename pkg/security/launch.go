package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrSecretExpired is returned when claiming a secret past its expiration
	ErrSecretExpired = errors.New("launch secret expired")

	// ErrSecretNotFound is returned when no secret exists for a token
	ErrSecretNotFound = errors.New("launch secret not found")
)

// sealedPayload is the plaintext layout inside SealedSecret.Data
type sealedPayload struct {
	Payload map[string]string `json:"payload"`
	Scopes  []string          `json:"scopes"`
}

// SecretStore keeps launch secrets encrypted at rest until the instance they
// were issued for claims them, or they expire.
type SecretStore struct {
	store   storage.Store
	sm      *SecretsManager
	logger  zerolog.Logger
	now     func() time.Time
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewSecretStore creates a secret store over store
func NewSecretStore(store storage.Store, sm *SecretsManager, logger zerolog.Logger) *SecretStore {
	return &SecretStore{
		store:  store,
		sm:     sm,
		logger: logger,
		now:    time.Now,
	}
}

// CreateSecret durably writes a launch secret
func (s *SecretStore) CreateSecret(ctx context.Context, secret *types.LaunchSecret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if secret.Token == "" {
		return fmt.Errorf("launch secret token cannot be empty")
	}

	data, err := s.sm.SealJSON(sealedPayload{Payload: secret.Payload, Scopes: secret.Scopes})
	if err != nil {
		return fmt.Errorf("failed to seal launch secret: %w", err)
	}

	err = s.store.CreateSecret(&types.SealedSecret{
		Token:      secret.Token,
		Pool:       secret.Pool,
		Data:       data,
		Expiration: secret.Expiration,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store launch secret: %w", err)
	}
	return nil
}

// ClaimSecret returns the secret for token and removes it, so each token can
// be claimed once
func (s *SecretStore) ClaimSecret(token string) (*types.LaunchSecret, error) {
	sealed, err := s.store.GetSecret(token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, err
	}

	if !s.now().Before(sealed.Expiration) {
		return nil, ErrSecretExpired
	}

	var payload sealedPayload
	if err := s.sm.OpenJSON(sealed.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to open launch secret: %w", err)
	}

	if err := s.store.DeleteSecret(token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost a race with another claim
			return nil, ErrSecretNotFound
		}
		return nil, err
	}

	return &types.LaunchSecret{
		Token:      sealed.Token,
		Pool:       sealed.Pool,
		Payload:    payload.Payload,
		Scopes:     payload.Scopes,
		Expiration: sealed.Expiration,
	}, nil
}

// PurgeExpired deletes every secret past its expiration and returns how many
// were removed
func (s *SecretStore) PurgeExpired() (int, error) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		return 0, err
	}

	now := s.now()
	purged := 0
	for _, sealed := range secrets {
		if now.Before(sealed.Expiration) {
			continue
		}
		if err := s.store.DeleteSecret(sealed.Token); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return purged, err
		}
		purged++
	}

	metrics.LaunchSecretsOutstanding.Set(float64(len(secrets) - purged))
	return purged, nil
}

// Start runs PurgeExpired every interval until Stop
func (s *SecretStore) Start(interval time.Duration) {
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := s.PurgeExpired()
				if err != nil {
					s.logger.Error().Err(err).Msg("failed to purge expired launch secrets")
					metrics.UpdateComponent(metrics.ComponentSecrets, false, err.Error())
					continue
				}
				metrics.UpdateComponent(metrics.ComponentSecrets, true, "")
				if n > 0 {
					s.logger.Info().Int("purged", n).Msg("purged expired launch secrets")
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops the janitor started by Start
func (s *SecretStore) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.stopped
	s.stopCh = nil
}
