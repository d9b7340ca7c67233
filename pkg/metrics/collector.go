package metrics

import (
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/types"
)

// StoreReader is the part of the store the collector samples
type StoreReader interface {
	ListPools() ([]*pool.Pool, error)
	ListSecrets() ([]*types.SealedSecret, error)
	ListKeyPairs() ([]*types.KeyPair, error)
}

// Collector samples object counts from the store and reports the store's
// health component
type Collector struct {
	store    StoreReader
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store StoreReader, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	pools, err := c.store.ListPools()
	if err != nil {
		UpdateComponent(ComponentStore, false, err.Error())
		return
	}
	StoredObjects.WithLabelValues("pools").Set(float64(len(pools)))

	secrets, err := c.store.ListSecrets()
	if err != nil {
		UpdateComponent(ComponentStore, false, err.Error())
		return
	}
	StoredObjects.WithLabelValues("secrets").Set(float64(len(secrets)))

	keyPairs, err := c.store.ListKeyPairs()
	if err != nil {
		UpdateComponent(ComponentStore, false, err.Error())
		return
	}
	StoredObjects.WithLabelValues("key_pairs").Set(float64(len(keyPairs)))

	UpdateComponent(ComponentStore, true, "")
}
