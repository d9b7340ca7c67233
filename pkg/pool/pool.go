package pool

import (
	"fmt"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// Pool is the declared definition of a worker pool
type Pool struct {
	Name          string            `json:"name" yaml:"name"`
	Owner         string            `json:"owner,omitempty" yaml:"owner,omitempty"`
	Description   string            `json:"description,omitempty" yaml:"description,omitempty"`
	MinCapacity   int               `json:"minCapacity" yaml:"minCapacity"`
	MaxCapacity   int               `json:"maxCapacity" yaml:"maxCapacity"`
	ScalingRatio  float64           `json:"scalingRatio" yaml:"scalingRatio"`
	MinPrice      float64           `json:"minPrice" yaml:"minPrice"`
	MaxPrice      float64           `json:"maxPrice" yaml:"maxPrice"`
	LaunchSpec    types.LaunchSpec  `json:"launchSpec" yaml:"launchSpec"`
	Regions       []Region          `json:"regions" yaml:"regions"`
	InstanceTypes []InstanceType    `json:"instanceTypes" yaml:"instanceTypes"`
	Secrets       map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Scopes        []string          `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	LastModified  time.Time         `json:"lastModified" yaml:"-"`

	policy Policy
}

// Region is a region the pool may launch in, with its launch spec overlay
type Region struct {
	Name       string           `json:"region" yaml:"region"`
	LaunchSpec types.LaunchSpec `json:"launchSpec" yaml:"launchSpec"`
}

// InstanceType is an instance type the pool may launch
type InstanceType struct {
	Type       string           `json:"instanceType" yaml:"instanceType"`
	Capacity   int              `json:"capacity" yaml:"capacity"`
	Utility    float64          `json:"utility" yaml:"utility"`
	LaunchSpec types.LaunchSpec `json:"launchSpec" yaml:"launchSpec"`
}

// Validate checks that the definition is usable
func (p *Pool) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pool name cannot be empty")
	}
	if p.MinCapacity < 0 {
		return fmt.Errorf("pool %s: minCapacity cannot be negative", p.Name)
	}
	if p.MaxCapacity < p.MinCapacity {
		return fmt.Errorf("pool %s: maxCapacity %d is below minCapacity %d", p.Name, p.MaxCapacity, p.MinCapacity)
	}
	if p.ScalingRatio < 0 {
		return fmt.Errorf("pool %s: scalingRatio cannot be negative", p.Name)
	}
	if p.MaxPrice < p.MinPrice {
		return fmt.Errorf("pool %s: maxPrice is below minPrice", p.Name)
	}
	if len(p.Regions) == 0 {
		return fmt.Errorf("pool %s: at least one region is required", p.Name)
	}
	if len(p.InstanceTypes) == 0 {
		return fmt.Errorf("pool %s: at least one instance type is required", p.Name)
	}

	seen := make(map[string]bool)
	for _, r := range p.Regions {
		if r.Name == "" {
			return fmt.Errorf("pool %s: region name cannot be empty", p.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("pool %s: duplicate region %s", p.Name, r.Name)
		}
		seen[r.Name] = true
	}

	seen = make(map[string]bool)
	for _, it := range p.InstanceTypes {
		if it.Type == "" {
			return fmt.Errorf("pool %s: instance type cannot be empty", p.Name)
		}
		if seen[it.Type] {
			return fmt.Errorf("pool %s: duplicate instance type %s", p.Name, it.Type)
		}
		seen[it.Type] = true
		if it.Capacity <= 0 {
			return fmt.Errorf("pool %s: instance type %s must have positive capacity", p.Name, it.Type)
		}
		if it.Utility <= 0 {
			return fmt.Errorf("pool %s: instance type %s must have positive utility", p.Name, it.Type)
		}
	}

	return nil
}

// RegionNames returns the names of all allowed regions
func (p *Pool) RegionNames() []string {
	names := make([]string, 0, len(p.Regions))
	for _, r := range p.Regions {
		names = append(names, r.Name)
	}
	return names
}

// Region looks up an allowed region by name
func (p *Pool) Region(name string) (*Region, bool) {
	for i := range p.Regions {
		if p.Regions[i].Name == name {
			return &p.Regions[i], true
		}
	}
	return nil, false
}

// InstanceType looks up an allowed instance type by name
func (p *Pool) InstanceType(name string) (*InstanceType, bool) {
	for i := range p.InstanceTypes {
		if p.InstanceTypes[i].Type == name {
			return &p.InstanceTypes[i], true
		}
	}
	return nil, false
}

// CapacityChange returns how many capacity units should be added (positive)
// or removed (negative) given the current running capacity, pending capacity
// and backlog.
func (p *Pool) CapacityChange(running, pending, backlog int) int {
	return p.Policy().CapacityChange(running, pending, backlog)
}

// Policy returns the capacity policy in effect for this pool
func (p *Pool) Policy() Policy {
	if p.policy != nil {
		return p.policy
	}
	return RatioPolicy{
		MinCapacity:  p.MinCapacity,
		MaxCapacity:  p.MaxCapacity,
		ScalingRatio: p.ScalingRatio,
	}
}

// WithPolicy replaces the pool's capacity policy
func (p *Pool) WithPolicy(policy Policy) *Pool {
	p.policy = policy
	return p
}
