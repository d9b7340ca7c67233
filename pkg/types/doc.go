/*
Package types defines the data structures shared by the provisioner's
packages.

# Core Types

Capacity:
  - CapacityState: running, pending or spot-request
  - InFlightStates: the states that count as pending capacity
  - SpotRequest: an open request for an instance
  - Instance: a provisioned machine and its cloud-side state

Pricing and placement:
  - PricingSnapshot: region -> zone -> instance type -> hourly price
  - Bid: one candidate placement with its offered and normalized price

Launching:
  - LaunchSpec: image, instance type, key pair, user data and tags
  - LaunchSecret: the one-time secret an instance claims at boot
  - SealedSecret: the encrypted at-rest form of a LaunchSecret
  - KeyPair: the SSH key registered for a pool

Reporting:
  - IterationRecord: one pool's inputs and decision for one sweep

Pool definitions live in package pool, since they carry behavior (validation
and the capacity policy) rather than plain data.
*/
package types
