/*
Package cloud implements the cloud-resource manager the provisioner drives.

LocalManager simulates a spot market on top of the BoltDB store so the whole
control loop can run without a cloud account. Resources move through a fixed
lifecycle:

	spot request --FulfillAfter--> pending instance --BootAfter--> running
	                                      \
	                                       terminated (reaped on next Refresh)

Refresh advances that lifecycle and caches the result. Capacity queries for
the rest of a sweep read only the cache, so every pool sees the same view of
the fleet. Mutations (new spot requests, cancellations, terminations) go
straight to the store and become visible at the next Refresh.

Every call that would reach a provider API waits on a token bucket
(golang.org/x/time/rate) first. Kill operations draw only from spot
requests and pending instances; running capacity is never terminated by a
capacity change.

Ownership is tracked with the Name, Owner and WorkerType tags. Resources
tagged with another provisioner's Owner are never touched; untagged ones are
adopted by EnsureTags.
*/
package cloud
