package cloud

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/fleet-provisioner/pkg/pool"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/cuemby/fleet-provisioner/pkg/types"
	"golang.org/x/crypto/ssh"
)

// EnsureKeyPair registers an SSH key pair for the pool unless one exists
func (m *LocalManager) EnsureKeyPair(ctx context.Context, poolName string) error {
	name := pool.KeyPairName(m.cfg.ProvisionerID, poolName)

	_, err := m.store.GetKeyPair(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to look up key pair %s: %w", name, err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	kp, err := m.generateKeyPair(name, poolName)
	if err != nil {
		return err
	}
	if err := m.store.PutKeyPair(kp); err != nil {
		return fmt.Errorf("failed to store key pair %s: %w", name, err)
	}

	m.logger.Info().Str("pool", poolName).Str("key_name", name).Str("fingerprint", kp.Fingerprint).Msg("created key pair")
	return nil
}

func (m *LocalManager) generateKeyPair(name, poolName string) (*types.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, name)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	sealed, err := m.sm.Encrypt(pem.EncodeToMemory(block))
	if err != nil {
		return nil, fmt.Errorf("failed to seal private key: %w", err)
	}

	return &types.KeyPair{
		Name:          name,
		Pool:          poolName,
		Fingerprint:   ssh.FingerprintSHA256(sshPub),
		AuthorizedKey: strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))),
		EncryptedPriv: sealed,
		CreatedAt:     m.now(),
	}, nil
}
