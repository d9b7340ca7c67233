package bid

import (
	"testing"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bidPool() *pool.Pool {
	return &pool.Pool{
		Name:     "worker-a",
		MinPrice: 0.05,
		MaxPrice: 1.0,
		Regions: []pool.Region{
			{Name: "us-east-1"},
			{Name: "us-west-2"},
		},
		InstanceTypes: []pool.InstanceType{
			{Type: "m5.large", Capacity: 1, Utility: 1},
			{Type: "m5.xlarge", Capacity: 2, Utility: 1},
		},
	}
}

func snapshot() *types.PricingSnapshot {
	return &types.PricingSnapshot{
		Prices: map[string]map[string]map[string]float64{
			"us-east-1": {
				"us-east-1a": {"m5.large": 0.10, "m5.xlarge": 0.30},
				"us-east-1b": {"m5.large": 0.09},
			},
			"us-west-2": {
				"us-west-2a": {"m5.large": 0.12, "m5.xlarge": 0.16},
			},
			"eu-west-1": {
				"eu-west-1a": {"m5.large": 0.01},
			},
		},
	}
}

func TestResolvePicksCheapestTruePrice(t *testing.T) {
	// One bid per instance even though the winning type holds two units
	bids, err := Resolve(bidPool(), snapshot(), 4)
	require.NoError(t, err)
	require.Len(t, bids, 4)

	for _, b := range bids {
		assert.Equal(t, "us-west-2", b.Region)
		assert.Equal(t, "us-west-2a", b.Zone)
		assert.Equal(t, "m5.xlarge", b.InstanceType)
		assert.InDelta(t, 0.08, b.TruePrice, 1e-9)
		assert.Equal(t, 2, b.Capacity)
	}
}

func TestResolveIgnoresDisallowedRegions(t *testing.T) {
	cands := Candidates(bidPool(), snapshot())
	for _, c := range cands {
		assert.NotEqual(t, "eu-west-1", c.Region)
	}
}

func TestResolveAppliesPriceLimits(t *testing.T) {
	p := bidPool()
	p.MaxPrice = 0.11
	p.MinPrice = 0.095

	cands := Candidates(p, snapshot())
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.LessOrEqual(t, c.Price, 0.11)
		assert.GreaterOrEqual(t, c.Price, 0.095)
	}
	// 0.09 is raised to the minimum price
	assert.Equal(t, "us-east-1b", cands[0].Zone)
	assert.InDelta(t, 0.095, cands[0].Price, 1e-9)
}

func TestResolveZeroCount(t *testing.T) {
	bids, err := Resolve(bidPool(), snapshot(), 0)
	assert.NoError(t, err)
	assert.Empty(t, bids)
}

func TestResolveNoCandidates(t *testing.T) {
	_, err := Resolve(bidPool(), &types.PricingSnapshot{}, 2)
	assert.ErrorIs(t, err, ErrNoBids)
}

func TestCandidatesOrderingIsDeterministic(t *testing.T) {
	p := bidPool()
	snap := &types.PricingSnapshot{
		Prices: map[string]map[string]map[string]float64{
			"us-east-1": {
				"us-east-1b": {"m5.large": 0.1},
				"us-east-1a": {"m5.large": 0.1},
			},
		},
	}

	cands := Candidates(p, snap)
	require.Len(t, cands, 2)
	assert.Equal(t, "us-east-1a", cands[0].Zone)
	assert.Equal(t, "us-east-1b", cands[1].Zone)
}
