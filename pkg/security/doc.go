/*
Package security provides encryption at rest and the launch secret store.

# Encryption

SecretsManager encrypts data with AES-256-GCM. Each ciphertext carries its
own random nonce:

	┌──────────────┬────────────────────────────┐
	│ Nonce (12 B) │ Ciphertext + GCM tag       │
	└──────────────┴────────────────────────────┘

The 32-byte key is either supplied directly or derived from a password with
SHA-256. The same manager seals launch secrets and the private halves of pool
key pairs.

# Launch Secrets

Every instance the provisioner launches gets a random security token in its
user data. Before the spot request is made, a LaunchSecret holding the pool's
secret payload and scopes is written under that token. At boot the instance
presents the token once:

	provisioner                  store                    instance
	    │  CreateSecret(token)     │                          │
	    │─────────────────────────►│                          │
	    │  RequestSpot(userData{token})                       │
	    │────────────────────────────────────────────────────►│
	    │                          │   ClaimSecret(token)     │
	    │                          │◄─────────────────────────│
	    │                          │   payload, then deleted  │
	    │                          │─────────────────────────►│

A claimed secret is deleted, so a second claim returns ErrSecretNotFound.
Secrets past their expiration return ErrSecretExpired and are removed by the
janitor started with Start.

# Usage

	sm, err := security.NewSecretsManagerFromPassword(password)
	if err != nil {
		return err
	}

	secrets := security.NewSecretStore(store, sm, logger)
	secrets.Start(5 * time.Minute)
	defer secrets.Stop()

	secret, err := secrets.ClaimSecret(token)
*/
package security
