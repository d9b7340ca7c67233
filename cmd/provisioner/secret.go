package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/log"
	"github.com/cuemby/fleet-provisioner/pkg/security"
	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage launch secrets",
}

var secretClaimCmd = &cobra.Command{
	Use:   "claim TOKEN",
	Short: "Claim the launch secret for a token",
	Long: `Print the launch secret issued for TOKEN as JSON and delete it. A token
can be claimed once; expired secrets cannot be claimed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretClaim,
}

var secretPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired launch secrets",
	RunE:  runSecretPurge,
}

func init() {
	secretCmd.AddCommand(secretClaimCmd)
	secretCmd.AddCommand(secretPurgeCmd)
}

type claimOutput struct {
	Pool       string            `json:"workerType"`
	Secrets    map[string]string `json:"secrets"`
	Scopes     []string          `json:"scopes"`
	Expiration time.Time         `json:"expiration"`
}

func openSecretStore(cmd *cobra.Command) (*security.SecretStore, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	sm, err := secretsManager(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return security.NewSecretStore(store, sm, log.WithComponent("secrets")), func() { store.Close() }, nil
}

func runSecretClaim(cmd *cobra.Command, args []string) error {
	secrets, closeStore, err := openSecretStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	secret, err := secrets.ClaimSecret(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(claimOutput{
		Pool:       secret.Pool,
		Secrets:    secret.Payload,
		Scopes:     secret.Scopes,
		Expiration: secret.Expiration,
	})
}

func runSecretPurge(cmd *cobra.Command, args []string) error {
	secrets, closeStore, err := openSecretStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := secrets.PurgeExpired()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Purged %d expired secrets\n", n)
	return nil
}
