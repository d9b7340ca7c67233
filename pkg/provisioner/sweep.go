package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// RunAllProvisionersOnce performs one sweep. Pools, prices and cloud state are
// loaded concurrently; then fleet maintenance and every pool's
// reconciliation run concurrently. A failing task does not stop the others;
// all failures are joined into the returned error.
func (p *Provisioner) RunAllProvisionersOnce(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		pools    []*pool.Pool
		snapshot *types.PricingSnapshot
		poolsErr error
		priceErr error
		cloudErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		pools, poolsErr = p.pools.ListPools()
	}()
	go func() {
		defer wg.Done()
		snapshot, priceErr = p.pricing.Snapshot(ctx)
	}()
	go func() {
		defer wg.Done()
		cloudErr = p.cloud.Refresh(ctx)
	}()
	wg.Wait()

	if poolsErr != nil {
		poolsErr = fmt.Errorf("failed to list pools: %w", poolsErr)
	}
	if priceErr != nil {
		priceErr = fmt.Errorf("failed to fetch prices: %w", priceErr)
	}
	if cloudErr != nil {
		cloudErr = fmt.Errorf("failed to refresh cloud state: %w", cloudErr)
	}
	if err := errors.Join(poolsErr, priceErr, cloudErr); err != nil {
		return err
	}

	metrics.PoolsTotal.Set(float64(len(pools)))

	names := make([]string, 0, len(pools))
	for _, pl := range pools {
		names = append(names, pl.Name)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	run := func(task string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				p.logger.Error().Err(err).Str("task", task).Msg("sweep task failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", task, err))
				mu.Unlock()
			}
		}()
	}

	run("kill rogues", func() error {
		_, err := p.cloud.KillRogues(ctx, names)
		return err
	})
	run("kill zombies", func() error {
		_, err := p.cloud.KillZombies(ctx)
		return err
	})
	run("ensure tags", func() error {
		return p.cloud.EnsureTags(ctx)
	})
	for _, pl := range pools {
		run("key pair "+pl.Name, func() error {
			return p.cloud.EnsureKeyPair(ctx, pl.Name)
		})
	}
	for _, pl := range pools {
		run("pool "+pl.Name, func() error {
			return p.ProvisionPool(ctx, pl, snapshot)
		})
	}
	wg.Wait()

	return errors.Join(errs...)
}
