package security

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSecretStore(t *testing.T) (*SecretStore, *storage.BoltStore) {
	t.Helper()
	bolt, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	sm, err := NewSecretsManagerFromPassword("test-password")
	require.NoError(t, err)

	return NewSecretStore(bolt, sm, zerolog.Nop()), bolt
}

func launchSecret(token string, ttl time.Duration) *types.LaunchSecret {
	return &types.LaunchSecret{
		Token:      token,
		Pool:       "worker-a",
		Payload:    map[string]string{"accessToken": "s3cret"},
		Scopes:     []string{"queue:claim-work:worker-a"},
		Expiration: time.Now().Add(ttl),
	}
}

func TestCreateAndClaimOnce(t *testing.T) {
	secrets, bolt := newTestSecretStore(t)

	require.NoError(t, secrets.CreateSecret(context.Background(), launchSecret("tok-1", time.Hour)))

	// Payload is not stored in clear text
	sealed, err := bolt.GetSecret("tok-1")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed.Data), "s3cret")

	claimed, err := secrets.ClaimSecret("tok-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", claimed.Pool)
	assert.Equal(t, "s3cret", claimed.Payload["accessToken"])
	assert.Equal(t, []string{"queue:claim-work:worker-a"}, claimed.Scopes)

	_, err = secrets.ClaimSecret("tok-1")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestCreateRejectsDuplicateToken(t *testing.T) {
	secrets, _ := newTestSecretStore(t)

	require.NoError(t, secrets.CreateSecret(context.Background(), launchSecret("tok-1", time.Hour)))
	err := secrets.CreateSecret(context.Background(), launchSecret("tok-1", time.Hour))
	assert.ErrorIs(t, err, storage.ErrExists)
}

func TestCreateRejectsEmptyToken(t *testing.T) {
	secrets, _ := newTestSecretStore(t)
	assert.Error(t, secrets.CreateSecret(context.Background(), launchSecret("", time.Hour)))
}

func TestClaimExpired(t *testing.T) {
	secrets, _ := newTestSecretStore(t)

	require.NoError(t, secrets.CreateSecret(context.Background(), launchSecret("tok-1", time.Minute)))
	secrets.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := secrets.ClaimSecret("tok-1")
	assert.ErrorIs(t, err, ErrSecretExpired)
}

func TestPurgeExpired(t *testing.T) {
	secrets, bolt := newTestSecretStore(t)
	ctx := context.Background()

	require.NoError(t, secrets.CreateSecret(ctx, launchSecret("short", time.Minute)))
	require.NoError(t, secrets.CreateSecret(ctx, launchSecret("long", time.Hour)))

	secrets.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	n, err := secrets.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := bolt.ListSecrets()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "long", remaining[0].Token)
}

func TestJanitorPurges(t *testing.T) {
	secrets, bolt := newTestSecretStore(t)

	require.NoError(t, secrets.CreateSecret(context.Background(), launchSecret("tok-1", 10*time.Millisecond)))

	secrets.Start(10 * time.Millisecond)
	defer secrets.Stop()

	assert.Eventually(t, func() bool {
		remaining, err := bolt.ListSecrets()
		return err == nil && len(remaining) == 0
	}, time.Second, 10*time.Millisecond)
}
