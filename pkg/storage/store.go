package storage

import (
	"errors"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a key that already exists
	ErrExists = errors.New("already exists")
)

// Store defines the interface for provisioner state storage
type Store interface {
	// Pools
	PutPool(p *pool.Pool) error
	GetPool(name string) (*pool.Pool, error)
	ListPools() ([]*pool.Pool, error)
	DeletePool(name string) error

	// Launch secrets
	CreateSecret(secret *types.SealedSecret) error
	GetSecret(token string) (*types.SealedSecret, error)
	ListSecrets() ([]*types.SealedSecret, error)
	DeleteSecret(token string) error

	// Spot requests
	PutSpotRequest(req *types.SpotRequest) error
	UpdateSpotRequest(id string, fn func(req *types.SpotRequest) bool) error
	ListSpotRequests() ([]*types.SpotRequest, error)
	DeleteSpotRequest(id string) error

	// Instances
	PutInstance(inst *types.Instance) error
	UpdateInstance(id string, fn func(inst *types.Instance) bool) error
	GetInstance(id string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	DeleteInstance(id string) error

	// Key pairs
	PutKeyPair(kp *types.KeyPair) error
	GetKeyPair(name string) (*types.KeyPair, error)
	ListKeyPairs() ([]*types.KeyPair, error)

	// Utility
	Close() error
}
