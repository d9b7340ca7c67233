package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/fleet-provisioner/pkg/config"
	"github.com/cuemby/fleet-provisioner/pkg/log"
	"github.com/cuemby/fleet-provisioner/pkg/provisioner"
	"github.com/cuemby/fleet-provisioner/pkg/security"
	"github.com/cuemby/fleet-provisioner/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var fatal *provisioner.FatalError
		if errors.As(err, &fatal) {
			os.Exit(provisioner.ExitCodeFatal)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Fleet provisioner - keeps worker pools sized to their backlog",
	Long: `The fleet provisioner runs an unattended reconciliation loop: every
sweep it compares each worker pool's pending work against its running and
in-flight capacity, then requests spot instances or cancels excess
in-flight capacity to close the gap.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"provisioner version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("provisioner version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// loadConfig reads the config file and applies persistent flag overrides
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// openStore opens the BoltDB store under the configured data directory
func openStore(cfg config.Config) (*storage.BoltStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func secretsManager(cfg config.Config) (*security.SecretsManager, error) {
	if cfg.Secrets.Password == "" {
		return nil, fmt.Errorf("secrets.password is required (or set %s)", config.PasswordEnv)
	}
	return security.NewSecretsManagerFromPassword(cfg.Secrets.Password)
}
