package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Loop metrics
	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioner_sweeps_total",
			Help: "Total number of reconciliation sweeps started",
		},
	)

	SweepsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioner_sweeps_failed_total",
			Help: "Total number of reconciliation sweeps that returned an error",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provisioner_sweep_duration_seconds",
			Help:    "Time taken by one reconciliation sweep in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provisioner_consecutive_failures",
			Help: "Number of sweeps that have failed in a row",
		},
	)

	// Per-pool iteration metrics
	PendingTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_pending_tasks",
			Help: "Pending tasks reported by the queue for a pool",
		},
		[]string{"pool"},
	)

	RunningCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_running_capacity",
			Help: "Capacity units running for a pool",
		},
		[]string{"pool"},
	)

	PendingCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_pending_capacity",
			Help: "Capacity units pending or requested for a pool",
		},
		[]string{"pool"},
	)

	CapacityChange = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_capacity_change",
			Help: "Capacity change computed for a pool in the last sweep",
		},
		[]string{"pool"},
	)

	PoolIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioner_pool_iterations_total",
			Help: "Total number of per-pool reconciliations by outcome",
		},
		[]string{"pool", "outcome"},
	)

	PoolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provisioner_pool_duration_seconds",
			Help:    "Duration of one pool's reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	// Actions
	SpawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioner_spawns_total",
			Help: "Total number of spot requests submitted by pool, region and status",
		},
		[]string{"pool", "region", "status"},
	)

	KilledCapacity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioner_killed_capacity_total",
			Help: "Capacity units terminated by reason",
		},
		[]string{"reason"},
	)

	// Cloud state
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_instances_total",
			Help: "Known instances by pool and state",
		},
		[]string{"pool", "state"},
	)

	SpotRequestsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provisioner_spot_requests_open",
			Help: "Open spot requests",
		},
	)

	LaunchSecretsOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provisioner_launch_secrets_outstanding",
			Help: "Launch secrets written but not yet claimed or expired",
		},
	)

	PoolsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provisioner_pools_total",
			Help: "Total number of declared pools",
		},
	)

	StoredObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provisioner_stored_objects",
			Help: "Objects held in the local store by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SweepsTotal)
	prometheus.MustRegister(SweepsFailed)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(ConsecutiveFailures)
	prometheus.MustRegister(PendingTasks)
	prometheus.MustRegister(RunningCapacity)
	prometheus.MustRegister(PendingCapacity)
	prometheus.MustRegister(CapacityChange)
	prometheus.MustRegister(PoolIterationsTotal)
	prometheus.MustRegister(PoolDuration)
	prometheus.MustRegister(SpawnsTotal)
	prometheus.MustRegister(KilledCapacity)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(SpotRequestsOpen)
	prometheus.MustRegister(LaunchSecretsOutstanding)
	prometheus.MustRegister(PoolsTotal)
	prometheus.MustRegister(StoredObjects)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
