package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/security"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNotRefreshed is returned by capacity queries issued before the first Refresh
var ErrNotRefreshed = errors.New("cloud state has not been refreshed")

// Config controls the simulated provider's lifecycle timings and API limits
type Config struct {
	ProvisionerID     string
	FulfillAfter      time.Duration // open spot request -> pending instance
	BootAfter         time.Duration // pending instance -> running
	ZombieAfter       time.Duration // max time a request or pending instance may linger
	RequestsPerSecond float64
	Burst             int
}

// LocalManager is a cloud-resource manager backed by the local store. It
// simulates spot request fulfilment and instance boot so the provisioner can
// run end to end without a cloud account.
type LocalManager struct {
	store   storage.Store
	sm      *security.SecretsManager
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	requests  []*types.SpotRequest
	instances []*types.Instance
	refreshed bool
}

// NewLocalManager creates a manager over store. sm encrypts generated
// private keys at rest.
func NewLocalManager(store storage.Store, sm *security.SecretsManager, cfg Config, logger zerolog.Logger) *LocalManager {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &LocalManager{
		store:   store,
		sm:      sm,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
		now:     time.Now,
	}
}

// Refresh advances the simulated lifecycle and reloads the cached view used
// by capacity queries for the rest of the sweep
func (m *LocalManager) Refresh(ctx context.Context) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	requests, err := m.store.ListSpotRequests()
	if err != nil {
		return fmt.Errorf("failed to list spot requests: %w", err)
	}
	instances, err := m.store.ListInstances()
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	now := m.now()

	// Fulfil requests that have been open long enough
	var open []*types.SpotRequest
	for _, req := range requests {
		if now.Sub(req.CreatedAt) < m.cfg.FulfillAfter {
			open = append(open, req)
			continue
		}
		inst := &types.Instance{
			ID:           "i-" + uuid.New().String()[:17],
			RequestID:    req.ID,
			Pool:         req.Pool,
			Region:       req.Region,
			Zone:         req.Zone,
			InstanceType: req.InstanceType,
			Capacity:     req.Capacity,
			State:        types.InstanceStatePending,
			Tags:         copyTags(req.Tags),
			LaunchedAt:   now,
		}
		if err := m.store.PutInstance(inst); err != nil {
			return fmt.Errorf("failed to fulfil spot request %s: %w", req.ID, err)
		}
		if err := m.store.DeleteSpotRequest(req.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to close spot request %s: %w", req.ID, err)
		}
		instances = append(instances, inst)
	}

	var live []*types.Instance
	for _, inst := range instances {
		switch inst.State {
		case types.InstanceStateTerminated:
			if err := m.store.DeleteInstance(inst.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("failed to reap instance %s: %w", inst.ID, err)
			}
			continue
		case types.InstanceStatePending:
			if now.Sub(inst.LaunchedAt) >= m.cfg.BootAfter {
				inst.State = types.InstanceStateRunning
				inst.RunningAt = now
				if err := m.store.PutInstance(inst); err != nil {
					return fmt.Errorf("failed to update instance %s: %w", inst.ID, err)
				}
			}
		}
		live = append(live, inst)
	}

	m.mu.Lock()
	m.requests = open
	m.instances = live
	m.refreshed = true
	m.mu.Unlock()

	m.publishGauges(open, live)
	return nil
}

// CapacityOfState sums the capacity units a pool has in any of states
func (m *LocalManager) CapacityOfState(ctx context.Context, pool string, states []types.CapacityState) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.refreshed {
		return 0, ErrNotRefreshed
	}

	total := 0
	for _, state := range states {
		switch state {
		case types.CapacityStateSpotRequest:
			for _, req := range m.requests {
				if req.Pool == pool {
					total += req.Capacity
				}
			}
		case types.CapacityStatePending, types.CapacityStateRunning:
			want := types.InstanceStatePending
			if state == types.CapacityStateRunning {
				want = types.InstanceStateRunning
			}
			for _, inst := range m.instances {
				if inst.Pool == pool && inst.State == want {
					total += inst.Capacity
				}
			}
		default:
			return 0, fmt.Errorf("unknown capacity state %q", state)
		}
	}
	return total, nil
}

// RequestSpot opens a spot request for one instance described by spec at
// the bid's placement and price
func (m *LocalManager) RequestSpot(ctx context.Context, pool string, spec types.LaunchSpec, bid types.Bid) (*types.SpotRequest, error) {
	if spec.ImageID == "" {
		return nil, fmt.Errorf("launch spec for pool %s has no image", pool)
	}
	if spec.AvailabilityZone != bid.Zone {
		return nil, fmt.Errorf("launch spec zone %q does not match bid zone %q", spec.AvailabilityZone, bid.Zone)
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := &types.SpotRequest{
		ID:           "sir-" + uuid.New().String()[:8],
		Pool:         pool,
		Region:       bid.Region,
		Zone:         bid.Zone,
		InstanceType: bid.InstanceType,
		Price:        bid.Price,
		Capacity:     bid.Capacity,
		Spec:         spec,
		Tags:         copyTags(spec.Tags),
		CreatedAt:    m.now(),
	}
	if err := m.store.PutSpotRequest(req); err != nil {
		return nil, fmt.Errorf("failed to submit spot request: %w", err)
	}

	m.logger.Debug().
		Str("pool", pool).
		Str("request_id", req.ID).
		Str("region", req.Region).
		Str("zone", req.Zone).
		Str("instance_type", req.InstanceType).
		Float64("price", req.Price).
		Msg("spot request submitted")

	return req, nil
}

// KillCapacityOfState terminates up to max capacity units of a pool drawn
// only from the in-flight states listed. Running capacity is never touched.
// Returns the capacity terminated.
func (m *LocalManager) KillCapacityOfState(ctx context.Context, pool string, max int, states []types.CapacityState) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var wantRequests, wantPending bool
	for _, state := range states {
		switch state {
		case types.CapacityStateSpotRequest:
			wantRequests = true
		case types.CapacityStatePending:
			wantPending = true
		}
	}

	m.mu.RLock()
	if !m.refreshed {
		m.mu.RUnlock()
		return 0, ErrNotRefreshed
	}
	var requests []*types.SpotRequest
	if wantRequests {
		for _, req := range m.requests {
			if req.Pool == pool && m.owned(req.Tags) {
				requests = append(requests, req)
			}
		}
	}
	var pending []*types.Instance
	if wantPending {
		for _, inst := range m.instances {
			if inst.Pool == pool && inst.State == types.InstanceStatePending && m.owned(inst.Tags) {
				pending = append(pending, inst)
			}
		}
	}
	m.mu.RUnlock()

	// Newest first: the most recent requests are the least likely to be
	// about to deliver capacity
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	sort.Slice(pending, func(i, j int) bool { return pending[i].LaunchedAt.After(pending[j].LaunchedAt) })

	killed := 0
	for _, req := range requests {
		if killed+req.Capacity > max {
			continue
		}
		ok, err := m.cancelRequest(ctx, req)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += req.Capacity
		}
	}
	for _, inst := range pending {
		if killed+inst.Capacity > max {
			continue
		}
		ok, err := m.terminate(ctx, inst)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += inst.Capacity
		}
	}

	if killed > 0 {
		metrics.KilledCapacity.WithLabelValues("excess").Add(float64(killed))
		m.logger.Info().Str("pool", pool).Int("killed", killed).Int("max", max).Msg("terminated excess capacity")
	}
	return killed, nil
}

// KillRogues terminates every resource owned by this provisioner whose pool
// is not in knownPools
func (m *LocalManager) KillRogues(ctx context.Context, knownPools []string) (int, error) {
	known := make(map[string]bool, len(knownPools))
	for _, name := range knownPools {
		known[name] = true
	}

	requests, instances := m.snapshot()
	killed := 0
	for _, req := range requests {
		if known[req.Pool] || !m.owned(req.Tags) {
			continue
		}
		ok, err := m.cancelRequest(ctx, req)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += req.Capacity
		}
	}
	for _, inst := range instances {
		if known[inst.Pool] || !m.owned(inst.Tags) {
			continue
		}
		ok, err := m.terminate(ctx, inst)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += inst.Capacity
		}
	}

	if killed > 0 {
		metrics.KilledCapacity.WithLabelValues("rogue").Add(float64(killed))
		m.logger.Warn().Int("killed", killed).Msg("terminated rogue capacity")
	}
	return killed, nil
}

// KillZombies terminates requests and pending instances that have lingered
// longer than ZombieAfter
func (m *LocalManager) KillZombies(ctx context.Context) (int, error) {
	if m.cfg.ZombieAfter <= 0 {
		return 0, nil
	}

	now := m.now()
	requests, instances := m.snapshot()
	killed := 0
	for _, req := range requests {
		if now.Sub(req.CreatedAt) < m.cfg.ZombieAfter || !m.owned(req.Tags) {
			continue
		}
		ok, err := m.cancelRequest(ctx, req)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += req.Capacity
		}
	}
	for _, inst := range instances {
		if inst.State != types.InstanceStatePending || now.Sub(inst.LaunchedAt) < m.cfg.ZombieAfter || !m.owned(inst.Tags) {
			continue
		}
		ok, err := m.terminate(ctx, inst)
		if err != nil {
			return killed, err
		}
		if ok {
			killed += inst.Capacity
		}
	}

	if killed > 0 {
		metrics.KilledCapacity.WithLabelValues("zombie").Add(float64(killed))
		m.logger.Warn().Int("killed", killed).Msg("terminated zombie capacity")
	}
	return killed, nil
}

// EnsureTags fills in the ownership tags on every resource missing them.
// Tags are merged into the stored record, so resources cancelled or
// terminated since Refresh stay that way.
func (m *LocalManager) EnsureTags(ctx context.Context) error {
	requests, instances := m.snapshot()

	for _, req := range requests {
		if _, changed := m.wantTags(req.Pool, req.Tags); !changed {
			continue
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		err := m.store.UpdateSpotRequest(req.ID, func(stored *types.SpotRequest) bool {
			tags, changed := m.wantTags(stored.Pool, stored.Tags)
			stored.Tags = tags
			return changed
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to tag spot request %s: %w", req.ID, err)
		}
	}
	for _, inst := range instances {
		if _, changed := m.wantTags(inst.Pool, inst.Tags); !changed {
			continue
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		err := m.store.UpdateInstance(inst.ID, func(stored *types.Instance) bool {
			if stored.State == types.InstanceStateTerminated {
				return false
			}
			tags, changed := m.wantTags(stored.Pool, stored.Tags)
			stored.Tags = tags
			return changed
		})
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to tag instance %s: %w", inst.ID, err)
		}
	}
	return nil
}

func (m *LocalManager) wantTags(pool string, have map[string]string) (map[string]string, bool) {
	want := map[string]string{
		"Name":       pool,
		"Owner":      m.cfg.ProvisionerID,
		"WorkerType": m.cfg.ProvisionerID + "/" + pool,
	}
	changed := false
	for k, v := range want {
		if have[k] != v {
			changed = true
		}
	}
	if !changed {
		return have, false
	}
	tags := copyTags(have)
	for k, v := range want {
		tags[k] = v
	}
	return tags, true
}

// owned reports whether a resource belongs to this provisioner. Untagged
// resources are treated as owned; EnsureTags will claim them.
func (m *LocalManager) owned(tags map[string]string) bool {
	owner, ok := tags["Owner"]
	return !ok || owner == m.cfg.ProvisionerID
}

func (m *LocalManager) snapshot() ([]*types.SpotRequest, []*types.Instance) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*types.SpotRequest(nil), m.requests...), append([]*types.Instance(nil), m.instances...)
}

// cancelRequest reports whether this call removed the request; false means
// another task already had
func (m *LocalManager) cancelRequest(ctx context.Context, req *types.SpotRequest) (bool, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return false, err
	}
	err := m.store.DeleteSpotRequest(req.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cancel spot request %s: %w", req.ID, err)
	}
	return true, nil
}

// terminate reports whether this call moved the instance to terminated
func (m *LocalManager) terminate(ctx context.Context, inst *types.Instance) (bool, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return false, err
	}
	terminated := false
	err := m.store.UpdateInstance(inst.ID, func(stored *types.Instance) bool {
		if stored.State == types.InstanceStateTerminated {
			return false
		}
		stored.State = types.InstanceStateTerminated
		terminated = true
		return true
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to terminate instance %s: %w", inst.ID, err)
	}
	return terminated, nil
}

func (m *LocalManager) publishGauges(requests []*types.SpotRequest, instances []*types.Instance) {
	metrics.SpotRequestsOpen.Set(float64(len(requests)))

	metrics.InstancesTotal.Reset()
	counts := make(map[[2]string]int)
	for _, inst := range instances {
		counts[[2]string{inst.Pool, string(inst.State)}]++
	}
	for key, n := range counts {
		metrics.InstancesTotal.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
