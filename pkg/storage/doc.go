/*
Package storage provides BoltDB-backed persistence for the provisioner's
collaborator state.

The provisioner itself keeps no durable state between sweeps. What lives here
belongs to the stores it consults: pool definitions written by operators, the
sealed launch secrets waiting to be claimed by booting instances, and the
simulated cloud's spot requests, instances and key pairs.

# Buckets

	pools          pool name   -> pool.Pool (JSON)
	secrets        token       -> types.SealedSecret (JSON, payload encrypted)
	spot_requests  request ID  -> types.SpotRequest (JSON)
	instances      instance ID -> types.Instance (JSON)
	key_pairs      key name    -> types.KeyPair (JSON, private key encrypted)

All reads run in db.View transactions and may proceed concurrently; writes
are serialized by db.Update. Missing keys are reported with ErrNotFound and
duplicate secret tokens with ErrExists, both wrapped so callers can use
errors.Is.
*/
package storage
