package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPools        = []byte("pools")
	bucketSecrets      = []byte("secrets")
	bucketSpotRequests = []byte("spot_requests")
	bucketInstances    = []byte("instances")
	bucketKeyPairs     = []byte("key_pairs")
)

const openTimeout = 2 * time.Second

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "provisioner.db")

	// The daemon holds the file lock; fail fast instead of blocking CLI commands
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPools,
			bucketSecrets,
			bucketSpotRequests,
			bucketInstances,
			bucketKeyPairs,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Pool operations
func (s *BoltStore) PutPool(p *pool.Pool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return put(s.db, bucketPools, p.Name, p)
}

func (s *BoltStore) GetPool(name string) (*pool.Pool, error) {
	return get[pool.Pool](s.db, bucketPools, "pool", name)
}

func (s *BoltStore) ListPools() ([]*pool.Pool, error) {
	return list[pool.Pool](s.db, bucketPools)
}

func (s *BoltStore) DeletePool(name string) error {
	return del(s.db, bucketPools, "pool", name)
}

// Secret operations

// CreateSecret stores a sealed secret. Tokens are single use, so an existing
// token is rejected rather than overwritten.
func (s *BoltStore) CreateSecret(secret *types.SealedSecret) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		if b.Get([]byte(secret.Token)) != nil {
			return fmt.Errorf("secret %s: %w", secret.Token, ErrExists)
		}
		data, err := json.Marshal(secret)
		if err != nil {
			return err
		}
		return b.Put([]byte(secret.Token), data)
	})
}

func (s *BoltStore) GetSecret(token string) (*types.SealedSecret, error) {
	return get[types.SealedSecret](s.db, bucketSecrets, "secret", token)
}

func (s *BoltStore) ListSecrets() ([]*types.SealedSecret, error) {
	return list[types.SealedSecret](s.db, bucketSecrets)
}

func (s *BoltStore) DeleteSecret(token string) error {
	return del(s.db, bucketSecrets, "secret", token)
}

// Spot request operations
func (s *BoltStore) PutSpotRequest(req *types.SpotRequest) error {
	return put(s.db, bucketSpotRequests, req.ID, req)
}

// UpdateSpotRequest applies fn to the stored request in one transaction. The
// request is written back only if fn returns true. A missing request is
// ErrNotFound.
func (s *BoltStore) UpdateSpotRequest(id string, fn func(req *types.SpotRequest) bool) error {
	return update(s.db, bucketSpotRequests, "spot request", id, fn)
}

func (s *BoltStore) ListSpotRequests() ([]*types.SpotRequest, error) {
	return list[types.SpotRequest](s.db, bucketSpotRequests)
}

func (s *BoltStore) DeleteSpotRequest(id string) error {
	return del(s.db, bucketSpotRequests, "spot request", id)
}

// Instance operations
func (s *BoltStore) PutInstance(inst *types.Instance) error {
	return put(s.db, bucketInstances, inst.ID, inst)
}

// UpdateInstance applies fn to the stored instance in one transaction, like
// UpdateSpotRequest
func (s *BoltStore) UpdateInstance(id string, fn func(inst *types.Instance) bool) error {
	return update(s.db, bucketInstances, "instance", id, fn)
}

func (s *BoltStore) GetInstance(id string) (*types.Instance, error) {
	return get[types.Instance](s.db, bucketInstances, "instance", id)
}

func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	return list[types.Instance](s.db, bucketInstances)
}

func (s *BoltStore) DeleteInstance(id string) error {
	return del(s.db, bucketInstances, "instance", id)
}

// Key pair operations
func (s *BoltStore) PutKeyPair(kp *types.KeyPair) error {
	return put(s.db, bucketKeyPairs, kp.Name, kp)
}

func (s *BoltStore) GetKeyPair(name string) (*types.KeyPair, error) {
	return get[types.KeyPair](s.db, bucketKeyPairs, "key pair", name)
}

func (s *BoltStore) ListKeyPairs() ([]*types.KeyPair, error) {
	return list[types.KeyPair](s.db, bucketKeyPairs)
}

func put(db *bolt.DB, bucket []byte, key string, v interface{}) error {
	return db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func get[T any](db *bolt.DB, bucket []byte, kind, key string) (*T, error) {
	var v T
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func update[T any](db *bolt.DB, bucket []byte, kind, key string, fn func(*T) bool) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", kind, key, err)
		}
		if !fn(&v) {
			return nil
		}
		out, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), out)
	})
}

func list[T any](db *bolt.DB, bucket []byte) ([]*T, error) {
	var out []*T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}
			out = append(out, &v)
			return nil
		})
	})
	return out, err
}

func del(db *bolt.DB, bucket []byte, kind, key string) error {
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}
