package bid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// ErrNoBids is returned when no region, zone and instance type combination
// is priced within the pool's limits
var ErrNoBids = errors.New("no acceptable bid")

// Candidates returns every placement the pool could bid on, cheapest first
func Candidates(p *pool.Pool, snapshot *types.PricingSnapshot) []types.Bid {
	var out []types.Bid

	for _, region := range p.Regions {
		for zone, prices := range snapshot.Zones(region.Name) {
			for _, it := range p.InstanceTypes {
				price, ok := prices[it.Type]
				if !ok || price <= 0 {
					continue
				}
				if p.MaxPrice > 0 && price > p.MaxPrice {
					continue
				}

				offer := math.Max(price, p.MinPrice)
				out = append(out, types.Bid{
					Region:       region.Name,
					Zone:         zone,
					InstanceType: it.Type,
					Price:        offer,
					TruePrice:    offer / float64(it.Capacity) / it.Utility,
					Capacity:     it.Capacity,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TruePrice != b.TruePrice {
			return a.TruePrice < b.TruePrice
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Zone != b.Zone {
			return a.Zone < b.Zone
		}
		return a.InstanceType < b.InstanceType
	})

	return out
}

// Resolve returns exactly count bids for the pool, all on the cheapest
// placement by true price. Each bid launches one instance whatever the
// capacity of its type, so count is in instances and a positive delta may
// overshoot by up to the chosen type's capacity minus one per bid.
func Resolve(p *pool.Pool, snapshot *types.PricingSnapshot, count int) ([]types.Bid, error) {
	if count <= 0 {
		return nil, nil
	}

	candidates := Candidates(p, snapshot)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("pool %s in regions %v: %w", p.Name, p.RegionNames(), ErrNoBids)
	}

	bids := make([]types.Bid, count)
	for i := range bids {
		bids[i] = candidates[0]
	}
	return bids, nil
}
