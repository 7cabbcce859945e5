package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ipsecd/pkg/api"
	"github.com/cuemby/ipsecd/pkg/config"
	"github.com/cuemby/ipsecd/pkg/events"
	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/security"
	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
	"github.com/cuemby/ipsecd/pkg/xfrm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run the daemon in the foreground.

The daemon connects to the IKE daemon, starts the configuration worker
and the statistics publisher, connects to the error-notify socket and
serves the HTTP API. The startup manifest, when given, replaces the one
persisted by the previous run.

Examples:
  # Run with defaults
  ipsecd run

  # Run with a config file and a startup manifest
  ipsecd run --config /etc/ipsecd/ipsecd.yaml --manifest /etc/ipsecd/tunnels.yaml`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Config file (YAML)")
	runCmd.Flags().String("manifest", "", "Manifest applied at startup (overrides config)")
	runCmd.Flags().String("log-level", "", "Log level (overrides config)")
	runCmd.Flags().Bool("log-json", false, "Log in JSON format")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if v, _ := cmd.Flags().GetString("manifest"); v != "" {
		cfg.Manifest = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if cmd.Flags().Changed("addr") {
		cfg.APIAddr, _ = cmd.Flags().GetString("addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	bolt, err := storage.NewBoltStore(cfg.DataDir, cfg.MaxErrors)
	if err != nil {
		return err
	}
	defer bolt.Close()
	metrics.RegisterComponent(metrics.ComponentStore, true, cfg.DataDir)

	var store storage.Store = bolt
	if cfg.SealManifest {
		key, err := security.LoadOrCreateKey(cfg.KeyFile())
		if err != nil {
			return err
		}
		sealer, err := security.NewSealer(key)
		if err != nil {
			return err
		}
		store = security.SealManifests(bolt, sealer)
	}

	broker := events.NewBroker()
	orch, err := orchestrator.New(&orchestrator.Config{
		IKE:                  ike.NewViciClient(cfg.ViciSocket),
		IPsec:                xfrm.NewNetlinkClient(),
		Store:                store,
		Broker:               broker,
		ErrorSocket:          cfg.ErrorSocket,
		PublishTick:          cfg.PublishTick,
		PublishInterval:      cfg.PublishInterval,
		ReconnectMaxInterval: cfg.ReconnectMaxInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	// Log events for operators tailing the daemon
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			logger.Debug().Str("event", string(ev.Type)).Str("message", ev.Message).Msg("event")
		}
	}()

	var n int
	if cfg.Manifest != "" {
		var data []byte
		if data, err = os.ReadFile(cfg.Manifest); err == nil {
			n, err = orch.ApplyYAML(data)
		}
	} else {
		n, err = orch.Restore()
	}
	switch {
	case errors.Is(err, types.ErrNotFound):
		logger.Info().Msg("No stored manifest to restore")
	case err != nil:
		logger.Error().Err(err).Int("tasks", n).Msg("Startup manifest not fully applied")
	default:
		logger.Info().Int("tasks", n).Msg("Startup manifest queued")
	}

	apiServer := api.NewServer(&api.Config{Daemon: orch, ReadOnly: cfg.APIReadOnly})
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	logger.Info().Str("api", cfg.APIAddr).Msg("ipsecd is running")

	// Wait for a signal or an API server error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown")
	}
	if err := orch.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}
