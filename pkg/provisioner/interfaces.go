package provisioner

import (
	"context"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// PoolStore lists the pool definitions to reconcile. It is read fresh every
// sweep so operator edits apply on the next one.
type PoolStore interface {
	ListPools() ([]*pool.Pool, error)
}

// PricingOracle supplies the prices bids are made against
type PricingOracle interface {
	Snapshot(ctx context.Context) (*types.PricingSnapshot, error)
}

// QueueClient reports the backlog a pool must absorb
type QueueClient interface {
	PendingTasks(ctx context.Context, provisionerID, pool string) (int, error)
}

// CloudManager queries and mutates the provider's instances and spot
// requests. Refresh must complete before capacity queries in a sweep.
type CloudManager interface {
	Refresh(ctx context.Context) error
	CapacityOfState(ctx context.Context, pool string, states []types.CapacityState) (int, error)
	RequestSpot(ctx context.Context, pool string, spec types.LaunchSpec, bid types.Bid) (*types.SpotRequest, error)
	KillCapacityOfState(ctx context.Context, pool string, max int, states []types.CapacityState) (int, error)

	KillRogues(ctx context.Context, knownPools []string) (int, error)
	KillZombies(ctx context.Context) (int, error)
	EnsureTags(ctx context.Context) error
	EnsureKeyPair(ctx context.Context, pool string) error
}

// SecretStore durably holds launch secrets until claimed or expired
type SecretStore interface {
	CreateSecret(ctx context.Context, secret *types.LaunchSecret) error
}

// MetricsSink receives one record per pool per sweep
type MetricsSink interface {
	RecordIteration(rec types.IterationRecord)
}
