package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/cloud"
	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/pricing"
	"github.com/cuemby/fleet-provisioner/pkg/queue"
	"github.com/cuemby/fleet-provisioner/pkg/security"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSweepAgainstLocalCloud drives real collaborators through several sweeps
func TestSweepAgainstLocalCloud(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	sm, err := security.NewSecretsManagerFromPassword("integration")
	require.NoError(t, err)
	secrets := security.NewSecretStore(store, sm, zerolog.Nop())

	require.NoError(t, store.PutPool(testPool("worker-a")))

	backlog := queue.Static{"worker-a": 3}
	local := cloud.NewLocalManager(store, sm, cloud.Config{
		ProvisionerID: "prov-1",
		FulfillAfter:  time.Hour,
		BootAfter:     time.Hour,
	}, zerolog.Nop())

	p := New(Config{ProvisionerID: "prov-1", SecretTTL: 40 * time.Minute}, Deps{
		Pools:   store,
		Pricing: pricing.Static{Prices: testSnapshot().Prices},
		Queue:   backlog,
		Cloud:   local,
		Secrets: secrets,
		Sink:    metrics.NewSink(zerolog.Nop()),
	})
	ctx := context.Background()

	// Backlog of 3 with nothing in flight requests 3 instances
	require.NoError(t, p.RunAllProvisionersOnce(ctx))

	requests, err := store.ListSpotRequests()
	require.NoError(t, err)
	require.Len(t, requests, 3)

	_, err = store.GetKeyPair(pool.KeyPairName("prov-1", "worker-a"))
	require.NoError(t, err)

	// Every request carries a token whose secret can be claimed exactly once
	for _, req := range requests {
		assert.Equal(t, "us-east-1b", req.Zone)
		ud, err := pool.DecodeUserData(req.Spec.UserData)
		require.NoError(t, err)

		secret, err := secrets.ClaimSecret(ud.SecurityToken)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", secret.Payload["queue-token"])

		_, err = secrets.ClaimSecret(ud.SecurityToken)
		assert.ErrorIs(t, err, security.ErrSecretNotFound)
	}

	// In-flight capacity already covers the backlog
	require.NoError(t, p.RunAllProvisionersOnce(ctx))
	requests, err = store.ListSpotRequests()
	require.NoError(t, err)
	assert.Len(t, requests, 3)

	// Backlog drained: the in-flight requests are cancelled
	backlog["worker-a"] = 0
	require.NoError(t, p.RunAllProvisionersOnce(ctx))
	requests, err = store.ListSpotRequests()
	require.NoError(t, err)
	assert.Empty(t, requests)
}
