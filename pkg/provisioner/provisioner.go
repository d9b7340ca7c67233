package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/bid"
	"github.com/cuemby/fleet-provisioner/pkg/delay"
	"github.com/cuemby/fleet-provisioner/pkg/log"
	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the per-sweep settings of a Provisioner
type Config struct {
	ProvisionerID string
	PacingDelay   time.Duration // pause after each spot request
	SecretTTL     time.Duration // lifetime of a launch secret
}

// Deps are the collaborators a Provisioner drives
type Deps struct {
	Pools   PoolStore
	Pricing PricingOracle
	Queue   QueueClient
	Cloud   CloudManager
	Secrets SecretStore
	Sink    MetricsSink
}

// Provisioner reconciles every pool's provisioned capacity with its backlog
type Provisioner struct {
	cfg     Config
	pools   PoolStore
	pricing PricingOracle
	queue   QueueClient
	cloud   CloudManager
	secrets SecretStore
	sink    MetricsSink
	pacing  delay.Delayer
	logger  zerolog.Logger

	now      func() time.Time
	newToken func() string
}

// New creates a provisioner
func New(cfg Config, deps Deps) *Provisioner {
	return &Provisioner{
		cfg:      cfg,
		pools:    deps.Pools,
		pricing:  deps.Pricing,
		queue:    deps.Queue,
		cloud:    deps.Cloud,
		secrets:  deps.Secrets,
		sink:     deps.Sink,
		pacing:   delay.New(cfg.PacingDelay),
		logger:   log.WithComponent("provisioner").With().Str("provisioner_id", cfg.ProvisionerID).Logger(),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// ProvisionPool sizes one pool against its backlog. Spot requests are made
// one at a time with a pacing delay after each; the first failure stops the
// chain and is returned. A shrinking pool only loses in-flight capacity.
func (p *Provisioner) ProvisionPool(ctx context.Context, pl *pool.Pool, snapshot *types.PricingSnapshot) error {
	logger := log.WithPool(p.logger, pl.Name)
	timer := metrics.NewTimer()
	outcome := "error"
	defer func() {
		timer.ObserveDurationVec(metrics.PoolDuration, pl.Name)
		metrics.PoolIterationsTotal.WithLabelValues(pl.Name, outcome).Inc()
	}()

	backlog, err := p.queue.PendingTasks(ctx, p.cfg.ProvisionerID, pl.Name)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}
	running, err := p.cloud.CapacityOfState(ctx, pl.Name, []types.CapacityState{types.CapacityStateRunning})
	if err != nil {
		return fmt.Errorf("failed to get running capacity: %w", err)
	}
	pending, err := p.cloud.CapacityOfState(ctx, pl.Name, types.InFlightStates)
	if err != nil {
		return fmt.Errorf("failed to get pending capacity: %w", err)
	}

	change := pl.CapacityChange(running, pending, backlog)

	p.sink.RecordIteration(types.IterationRecord{
		ProvisionerID:   p.cfg.ProvisionerID,
		Pool:            pl.Name,
		PendingTasks:    backlog,
		RunningCapacity: running,
		PendingCapacity: pending,
		Change:          change,
		Time:            p.now(),
	})

	switch {
	case change > 0:
		outcome = "scale_up"
		bids, err := bid.Resolve(pl, snapshot, change)
		if err != nil {
			return err
		}
		requested := make([]string, 0, len(bids))
		for i, b := range bids {
			req, err := p.Spawn(ctx, pl, b)
			if err != nil {
				return fmt.Errorf("spawn %d of %d: %w", i+1, len(bids), err)
			}
			if req, err = delay.Pass(ctx, p.pacing, req); err != nil {
				return err
			}
			requested = append(requested, req.ID)
		}
		logger.Info().Strs("requests", requested).Msg("requested capacity")

	case change < 0:
		outcome = "scale_down"
		killed, err := p.cloud.KillCapacityOfState(ctx, pl.Name, -change, types.InFlightStates)
		if err != nil {
			return fmt.Errorf("failed to kill excess capacity: %w", err)
		}
		logger.Info().Int("killed", killed).Int("excess", -change).Msg("shrank pool")

	default:
		outcome = "steady"
	}
	return nil
}

// Spawn requests one instance for a bid. The launch secret is written before
// the spot request is submitted; if the write fails nothing is requested.
func (p *Provisioner) Spawn(ctx context.Context, pl *pool.Pool, b types.Bid) (*types.SpotRequest, error) {
	launch, err := pl.LaunchFor(p.cfg.ProvisionerID, b.Region, b.InstanceType)
	if err != nil {
		metrics.SpawnsTotal.WithLabelValues(pl.Name, b.Region, "invalid").Inc()
		return nil, err
	}

	now := p.now()
	token := p.newToken()

	spec := launch.Spec
	spec.AvailabilityZone = b.Zone
	userData := launch.UserData
	userData.SecurityToken = token
	userData.LaunchedAt = now
	if spec.UserData, err = userData.Encode(); err != nil {
		metrics.SpawnsTotal.WithLabelValues(pl.Name, b.Region, "invalid").Inc()
		return nil, err
	}

	err = p.secrets.CreateSecret(ctx, &types.LaunchSecret{
		Token:      token,
		Pool:       pl.Name,
		Payload:    launch.Secrets,
		Scopes:     launch.Scopes,
		Expiration: now.Add(p.cfg.SecretTTL),
	})
	if err != nil {
		metrics.SpawnsTotal.WithLabelValues(pl.Name, b.Region, "secret_failed").Inc()
		return nil, fmt.Errorf("failed to create launch secret: %w", err)
	}

	req, err := p.cloud.RequestSpot(ctx, pl.Name, spec, b)
	if err != nil {
		metrics.SpawnsTotal.WithLabelValues(pl.Name, b.Region, "request_failed").Inc()
		return nil, fmt.Errorf("failed to request spot instance in %s: %w", b.Zone, err)
	}

	metrics.SpawnsTotal.WithLabelValues(pl.Name, b.Region, "requested").Inc()
	return req, nil
}
