/*
Package metrics provides Prometheus metrics and health endpoints for the
provisioner.

All metrics are registered on the default Prometheus registry at package init
and served by Handler. NewMux bundles the metrics handler with the health
endpoints:

	/metrics   Prometheus text exposition
	/health    overall status of every reported component
	/ready     200 once every critical component is registered and healthy
	/live      200 while the process is up

# Metrics

Loop:
  - provisioner_sweeps_total, provisioner_sweeps_failed_total
  - provisioner_sweep_duration_seconds (histogram)
  - provisioner_consecutive_failures

Per pool (the first four are published by Sink from each IterationRecord):
  - provisioner_pending_tasks
  - provisioner_running_capacity
  - provisioner_pending_capacity
  - provisioner_capacity_change
  - provisioner_pool_iterations_total{outcome}
  - provisioner_pool_duration_seconds (histogram)

Fleet:
  - provisioner_spawns_total{status}
  - provisioner_killed_capacity_total{reason}
  - provisioner_instances_total{state}, provisioner_spot_requests_open
  - provisioner_launch_secrets_outstanding
  - provisioner_pools_total, provisioner_stored_objects{kind}

# Health

Components report themselves with UpdateComponent. The store and the
provisioner loop are critical: readiness waits for both. The store is reported
by Collector, which also refreshes the stored object gauges on a ticker.

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	err := sweep(ctx)
	timer.ObserveDuration(metrics.SweepDuration)

Serving the endpoints:

	srv := &http.Server{Addr: addr, Handler: metrics.NewMux()}
	go srv.ListenAndServe()
*/
package metrics
