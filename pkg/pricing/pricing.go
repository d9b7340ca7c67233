package pricing

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/types"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Sheet is the on-disk price sheet layout:
//
//	prices:
//	  us-east-1:
//	    us-east-1a:
//	      m5.large: 0.034
type Sheet struct {
	Prices map[string]map[string]map[string]float64 `yaml:"prices"`
}

// Validate rejects negative prices and empty keys
func (s *Sheet) Validate() error {
	for region, zones := range s.Prices {
		if region == "" {
			return fmt.Errorf("price sheet has an empty region")
		}
		for zone, prices := range zones {
			if zone == "" {
				return fmt.Errorf("region %s has an empty zone", region)
			}
			for instanceType, price := range prices {
				if instanceType == "" {
					return fmt.Errorf("zone %s has an empty instance type", zone)
				}
				if price < 0 {
					return fmt.Errorf("price for %s in %s is negative", instanceType, zone)
				}
			}
		}
	}
	return nil
}

// FileOracle re-reads a YAML price sheet on every Snapshot so edits take
// effect on the next sweep. A sheet that fails to load after a good one
// falls back to the last good snapshot.
type FileOracle struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *types.PricingSnapshot
}

// NewFileOracle creates an oracle over the sheet at path
func NewFileOracle(path string, logger zerolog.Logger) *FileOracle {
	return &FileOracle{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Snapshot loads the current price sheet
func (o *FileOracle) Snapshot(ctx context.Context) (*types.PricingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot, err := o.load()

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		if o.last == nil {
			return nil, err
		}
		o.logger.Warn().Err(err).Time("fetched_at", o.last.FetchedAt).Msg("using last good price sheet")
		return o.last, nil
	}

	o.last = snapshot
	return snapshot, nil
}

func (o *FileOracle) load() (*types.PricingSnapshot, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price sheet: %w", err)
	}

	var sheet Sheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("failed to parse price sheet %s: %w", o.path, err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price sheet %s: %w", o.path, err)
	}

	return &types.PricingSnapshot{Prices: sheet.Prices, FetchedAt: o.now()}, nil
}

// Static serves a fixed set of prices
type Static struct {
	Prices map[string]map[string]map[string]float64
}

// Snapshot returns the fixed prices stamped with the current time
func (s Static) Snapshot(ctx context.Context) (*types.PricingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &types.PricingSnapshot{Prices: s.Prices, FetchedAt: time.Now()}, nil
}
