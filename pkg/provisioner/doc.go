/*
Package provisioner implements the reconciliation loop that keeps every
worker pool sized to its backlog.

# Architecture

A Loop repeatedly asks a Sweeper (normally a *Provisioner) to run one sweep,
then pauses for the configured interval:

	┌──────────────────────────── Loop.Run ────────────────────────────┐
	│                                                                  │
	│  touch watchdog ──► RunAllProvisionersOnce ──► record ──► pause  │
	│        ▲                                                   │     │
	│        └───────────────────────────────────────────────────┘     │
	└──────────────────────────────────────────────────────────────────┘

A sweep has two phases:

 1. Preparation. Pools, the pricing snapshot and the cloud state cache are
    loaded concurrently. If any of the three fails the sweep fails before
    touching the fleet.
 2. Reconciliation. Rogue cleanup, zombie cleanup, tag repair, one key pair
    check per pool and one ProvisionPool per pool all run concurrently. A
    failing task never cancels its siblings; every failure is joined into
    the sweep error.

# Capacity Decisions

ProvisionPool reads the pool's backlog from the work queue and its running
and in-flight capacity from the cloud cache, then asks the pool's Policy for
a delta. A positive delta is filled by resolving bids and spawning one spot
request per bid, sequentially, with a pacing delay after each request. A
negative delta cancels in-flight capacity only; running instances are never
terminated to shrink a pool. One IterationRecord is emitted per pool per
sweep once the delta is known.

Spawn writes the instance's launch secret before the spot request is made, so
an instance can never boot without a claimable secret. A secret write failure
skips the request.

# Failure Handling

The loop counts consecutive failed sweeps. Once the count exceeds
MaxConsecutiveFailures, or a single sweep goes longer than WatchdogTimeout
without progress, Run logs the condition, marks the provisioner unhealthy,
schedules a hard exit with ExitCodeFatal after FatalGrace and returns a
*FatalError. A supervisor is expected to restart the process.

Stop ends the loop after the in-flight sweep: it wakes the pause, disarms the
watchdog and resets the counters. Results of a sweep that finishes after Stop
are not recorded, and a later Run starts from a clean slate.

# Usage

	prov := provisioner.New(provisioner.Config{
		ProvisionerID: "fleet-provisioner",
		PacingDelay:   500 * time.Millisecond,
		SecretTTL:     40 * time.Minute,
	}, provisioner.Deps{
		Pools:   store,
		Pricing: oracle,
		Queue:   queue.NewHTTPClient(queueURL),
		Cloud:   cloudManager,
		Secrets: secretStore,
		Sink:    metrics.NewSink(logger),
	})

	loop := provisioner.NewLoop(provisioner.LoopConfig{
		Interval:               75 * time.Second,
		WatchdogTimeout:        10 * time.Minute,
		MaxConsecutiveFailures: 15,
		FatalGrace:             30 * time.Second,
	}, prov, logger)

	if err := loop.Run(context.Background()); err != nil {
		var fatal *provisioner.FatalError
		if errors.As(err, &fatal) {
			os.Exit(provisioner.ExitCodeFatal)
		}
	}
*/
package provisioner
