package provisioner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// eventLog records the order of collaborator calls across fakes
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(format string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type fakePools struct {
	pools []*pool.Pool
	err   error
}

func (f *fakePools) ListPools() ([]*pool.Pool, error) {
	return f.pools, f.err
}

type fakePricing struct {
	snapshot *types.PricingSnapshot
	err      error
}

func (f *fakePricing) Snapshot(ctx context.Context) (*types.PricingSnapshot, error) {
	return f.snapshot, f.err
}

type fakeQueue struct {
	backlog map[string]int
	errs    map[string]error
}

func (f *fakeQueue) PendingTasks(ctx context.Context, provisionerID, pool string) (int, error) {
	if err := f.errs[pool]; err != nil {
		return 0, err
	}
	return f.backlog[pool], nil
}

type requestCall struct {
	pool  string
	spec  types.LaunchSpec
	bid   types.Bid
	start time.Time
	end   time.Time
}

type killCall struct {
	pool   string
	max    int
	states []types.CapacityState
}

type fakeCloud struct {
	events *eventLog

	mu          sync.Mutex
	running     map[string]int
	inFlight    map[string]int
	refreshErr  error
	requestErrs map[int]error // by 1-based request number
	requestTime time.Duration
	killErr     error

	refreshed  int
	requests   []requestCall
	active     map[string]int
	maxActive  map[string]int
	kills      []killCall
	knownPools []string
	zombies    int
	tags       int
	keyPairs   []string
}

func newFakeCloud(events *eventLog) *fakeCloud {
	return &fakeCloud{
		events:      events,
		running:     make(map[string]int),
		inFlight:    make(map[string]int),
		requestErrs: make(map[int]error),
		active:      make(map[string]int),
		maxActive:   make(map[string]int),
	}
}

func (f *fakeCloud) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return f.refreshErr
}

func (f *fakeCloud) CapacityOfState(ctx context.Context, pool string, states []types.CapacityState) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	countedInFlight := false
	for _, state := range states {
		switch state {
		case types.CapacityStateRunning:
			total += f.running[pool]
		case types.CapacityStatePending, types.CapacityStateSpotRequest:
			// the fake keeps one in-flight total per pool
			if !countedInFlight {
				total += f.inFlight[pool]
				countedInFlight = true
			}
		}
	}
	return total, nil
}

func (f *fakeCloud) RequestSpot(ctx context.Context, pool string, spec types.LaunchSpec, bid types.Bid) (*types.SpotRequest, error) {
	start := time.Now()

	f.mu.Lock()
	n := len(f.requests) + 1
	err := f.requestErrs[n]
	f.active[pool]++
	if f.active[pool] > f.maxActive[pool] {
		f.maxActive[pool] = f.active[pool]
	}
	f.mu.Unlock()

	if f.events != nil {
		f.events.add("request:%s", tokenOf(spec))
	}
	if f.requestTime > 0 {
		time.Sleep(f.requestTime)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[pool]--
	f.requests = append(f.requests, requestCall{pool: pool, spec: spec, bid: bid, start: start, end: time.Now()})
	if err != nil {
		return nil, err
	}
	return &types.SpotRequest{ID: fmt.Sprintf("sir-%d", n), Pool: pool, Zone: bid.Zone, Capacity: bid.Capacity}, nil
}

func (f *fakeCloud) KillCapacityOfState(ctx context.Context, pool string, max int, states []types.CapacityState) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, killCall{pool: pool, max: max, states: append([]types.CapacityState(nil), states...)})
	if f.killErr != nil {
		return 0, f.killErr
	}
	killed := max
	if f.inFlight[pool] < killed {
		killed = f.inFlight[pool]
	}
	return killed, nil
}

func (f *fakeCloud) KillRogues(ctx context.Context, knownPools []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.knownPools = append([]string(nil), knownPools...)
	return 0, nil
}

func (f *fakeCloud) KillZombies(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zombies++
	return 0, nil
}

func (f *fakeCloud) EnsureTags(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags++
	return nil
}

func (f *fakeCloud) EnsureKeyPair(ctx context.Context, pool string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyPairs = append(f.keyPairs, pool)
	return nil
}

func (f *fakeCloud) requestsFor(pool string) []requestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []requestCall
	for _, r := range f.requests {
		if r.pool == pool {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeCloud) killsFor(pool string) []killCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []killCall
	for _, k := range f.kills {
		if k.pool == pool {
			out = append(out, k)
		}
	}
	return out
}

type fakeSecrets struct {
	events *eventLog
	err    error

	mu      sync.Mutex
	secrets []*types.LaunchSecret
}

func (f *fakeSecrets) CreateSecret(ctx context.Context, secret *types.LaunchSecret) error {
	if f.err != nil {
		return f.err
	}
	if f.events != nil {
		f.events.add("secret:%s", secret.Token)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets = append(f.secrets, secret)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []types.IterationRecord
}

func (f *fakeSink) RecordIteration(rec types.IterationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
}

func (f *fakeSink) recordsFor(pool string) []types.IterationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.IterationRecord
	for _, r := range f.records {
		if r.Pool == pool {
			out = append(out, r)
		}
	}
	return out
}

func tokenOf(spec types.LaunchSpec) string {
	ud, err := pool.DecodeUserData(spec.UserData)
	if err != nil {
		return "undecodable"
	}
	return ud.SecurityToken
}
