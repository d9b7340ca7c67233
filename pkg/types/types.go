package types

import (
	"time"
)

// CapacityState is the lifecycle state a unit of capacity is counted in
type CapacityState string

const (
	CapacityStateRunning     CapacityState = "running"
	CapacityStatePending     CapacityState = "pending"
	CapacityStateSpotRequest CapacityState = "spot-request"
)

// InFlightStates are the states that count as pending capacity. Capacity in
// these states may be terminated to shrink a pool; running capacity never is.
var InFlightStates = []CapacityState{CapacityStatePending, CapacityStateSpotRequest}

// PricingSnapshot holds spot prices valid for one sweep.
// Layout: region -> zone -> instance type -> price per instance hour.
type PricingSnapshot struct {
	Prices    map[string]map[string]map[string]float64
	FetchedAt time.Time
}

// Zones returns the zones priced in a region
func (p *PricingSnapshot) Zones(region string) map[string]map[string]float64 {
	if p == nil || p.Prices == nil {
		return nil
	}
	return p.Prices[region]
}

// Price returns the price of an instance type in a zone, if known
func (p *PricingSnapshot) Price(region, zone, instanceType string) (float64, bool) {
	zones := p.Zones(region)
	if zones == nil {
		return 0, false
	}
	price, ok := zones[zone][instanceType]
	return price, ok
}

// Bid is one candidate placement for a new instance
type Bid struct {
	Region       string
	Zone         string
	InstanceType string
	Price        float64 // Offered price per instance
	TruePrice    float64 // Price per capacity unit, normalized by utility
	Capacity     int     // Capacity units the instance provides
}

// LaunchSpec describes how to boot one instance
type LaunchSpec struct {
	ImageID          string            `json:"imageId" yaml:"imageId"`
	InstanceType     string            `json:"instanceType" yaml:"instanceType"`
	KeyName          string            `json:"keyName,omitempty" yaml:"keyName,omitempty"`
	SecurityGroups   []string          `json:"securityGroups,omitempty" yaml:"securityGroups,omitempty"`
	UserData         string            `json:"userData,omitempty" yaml:"userData,omitempty"` // base64 encoded JSON
	AvailabilityZone string            `json:"availabilityZone,omitempty" yaml:"availabilityZone,omitempty"`
	Tags             map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// LaunchSecret is handed to an instance exactly once, keyed by token
type LaunchSecret struct {
	Token      string
	Pool       string
	Payload    map[string]string
	Scopes     []string
	Expiration time.Time
}

// Expired reports whether the secret is past its expiration
func (s *LaunchSecret) Expired(now time.Time) bool {
	return !now.Before(s.Expiration)
}

// SpotRequest is an open request for capacity in the cloud
type SpotRequest struct {
	ID           string
	Pool         string
	Region       string
	Zone         string
	InstanceType string
	Price        float64
	Capacity     int
	Spec         LaunchSpec
	Tags         map[string]string
	CreatedAt    time.Time
}

// InstanceState is the cloud-side state of an instance
type InstanceState string

const (
	InstanceStatePending    InstanceState = "pending"
	InstanceStateRunning    InstanceState = "running"
	InstanceStateTerminated InstanceState = "terminated"
)

// Instance is a provisioned machine
type Instance struct {
	ID           string
	RequestID    string
	Pool         string
	Region       string
	Zone         string
	InstanceType string
	Capacity     int
	State        InstanceState
	Tags         map[string]string
	LaunchedAt   time.Time
	RunningAt    time.Time
}

// KeyPair is the SSH key material registered for a pool
type KeyPair struct {
	Name          string
	Pool          string
	Fingerprint   string
	AuthorizedKey string
	EncryptedPriv []byte // Encrypted with AES-256-GCM
	CreatedAt     time.Time
}

// IterationRecord is emitted once per pool per sweep
type IterationRecord struct {
	ProvisionerID   string
	Pool            string
	PendingTasks    int
	RunningCapacity int
	PendingCapacity int
	Change          int
	Time            time.Time
}

// SealedSecret is the at-rest form of a LaunchSecret. Data holds the
// encrypted payload and scopes.
type SealedSecret struct {
	Token      string
	Pool       string
	Data       []byte // Encrypted with AES-256-GCM
	Expiration time.Time
	CreatedAt  time.Time
}
