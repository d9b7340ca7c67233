package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/fleet-provisioner/pkg/cloud"
	"github.com/cuemby/fleet-provisioner/pkg/config"
	"github.com/cuemby/fleet-provisioner/pkg/log"
	"github.com/cuemby/fleet-provisioner/pkg/metrics"
	"github.com/cuemby/fleet-provisioner/pkg/pricing"
	"github.com/cuemby/fleet-provisioner/pkg/provisioner"
	"github.com/cuemby/fleet-provisioner/pkg/queue"
	"github.com/cuemby/fleet-provisioner/pkg/security"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the provisioning loop",
	Long: `Run the provisioning loop until interrupted.

A sweep that hangs past the watchdog timeout, or more consecutive failed
sweeps than allowed, is fatal: the process exits with status 70 so a
supervisor can restart it.

Examples:
  # Run continuously with a config file
  provisioner run -c /etc/fleet-provisioner/config.yaml

  # Run a single sweep and exit
  provisioner run -c config.yaml --once`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().Bool("once", false, "Run a single sweep and exit")
	runCmd.Flags().String("provisioner-id", "", "Provisioner ID (overrides config)")
	runCmd.Flags().Duration("interval", 0, "Pause between sweeps (overrides config)")
	runCmd.Flags().String("metrics-addr", "", "Address for /metrics and health endpoints (overrides config)")
	runCmd.Flags().String("queue-url", "", "Work queue base URL (overrides config)")
	runCmd.Flags().String("pricing-file", "", "YAML price sheet (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	once, _ := cmd.Flags().GetBool("once")

	logger := log.WithProvisionerID(cfg.ProvisionerID)
	metrics.SetVersion(Version)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sm, err := secretsManager(cfg)
	if err != nil {
		return err
	}

	secrets := security.NewSecretStore(store, sm, log.WithComponent("secrets"))
	secrets.Start(cfg.Secrets.PurgeInterval)
	defer secrets.Stop()

	collector := metrics.NewCollector(store, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	local := cloud.NewLocalManager(store, sm, cloud.Config{
		ProvisionerID:     cfg.ProvisionerID,
		FulfillAfter:      cfg.Cloud.FulfillAfter,
		BootAfter:         cfg.Cloud.BootAfter,
		ZombieAfter:       cfg.Cloud.ZombieAfter,
		RequestsPerSecond: cfg.Cloud.RequestsPerSecond,
		Burst:             cfg.Cloud.Burst,
	}, log.WithComponent("cloud"))

	prov := provisioner.New(provisioner.Config{
		ProvisionerID: cfg.ProvisionerID,
		PacingDelay:   cfg.Loop.PacingDelay,
		SecretTTL:     cfg.Secrets.TTL,
	}, provisioner.Deps{
		Pools:   store,
		Pricing: pricingOracle(cfg),
		Queue:   queueClient(cfg),
		Cloud:   local,
		Secrets: secrets,
		Sink:    metrics.NewSink(log.WithComponent("iterations")),
	})

	loop := provisioner.NewLoop(provisioner.LoopConfig{
		Interval:               cfg.Loop.Interval,
		WatchdogTimeout:        cfg.Loop.WatchdogTimeout,
		MaxConsecutiveFailures: cfg.Loop.MaxConsecutiveFailures,
		FatalGrace:             cfg.Loop.FatalGrace,
		Once:                   once,
	}, prov, log.WithComponent("loop"))

	var srv *http.Server
	if cfg.Metrics.Addr != "" && !once {
		srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server failed")
			}
		}()
		logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
	}

	// A signal lets the in-flight sweep finish; only the watchdog cuts one short
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("stopping after the current sweep")
		loop.Stop()
	}()

	if once {
		log.Info("running a single sweep")
	}
	runErr := loop.Run(context.Background())

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info().Msg("provisioner stopped")
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("provisioner-id"); v != "" {
		cfg.ProvisionerID = v
	}
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		cfg.Loop.Interval = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v, _ := cmd.Flags().GetString("queue-url"); v != "" {
		cfg.Queue.URL = v
	}
	if v, _ := cmd.Flags().GetString("pricing-file"); v != "" {
		cfg.Pricing.File = v
	}
}

func pricingOracle(cfg config.Config) provisioner.PricingOracle {
	if cfg.Pricing.File != "" {
		return pricing.NewFileOracle(cfg.Pricing.File, log.WithComponent("pricing"))
	}
	return pricing.Static{Prices: cfg.Pricing.Static}
}

func queueClient(cfg config.Config) provisioner.QueueClient {
	if cfg.Queue.URL != "" {
		return queue.NewHTTPClient(cfg.Queue.URL)
	}
	return queue.Static(cfg.Queue.Static)
}
