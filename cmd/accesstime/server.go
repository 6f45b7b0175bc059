package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/accesstime/internal/api"
	"github.com/goodtune/accesstime/internal/config"
	"github.com/goodtune/accesstime/internal/metrics"
	"github.com/goodtune/accesstime/internal/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the accesstime server",
	Long:  `Start the accesstime HTTP API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("storage", cfg.Storage.Type).
		Str("ledger", cfg.Token.Backend).
		Str("audit", cfg.Audit.Sink).
		Msg("Starting accesstime")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		RateLimit:       cfg.API.RateLimit,
		RateLimitWindow: config.ParseDuration(cfg.API.RateLimitWindow, time.Minute),
	}, a.svc, a.auth, logger)

	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().Msg("accesstime startup complete")
	logger.Info().Msgf("API: http://%s:%d/api", cfg.Server.BindAddress, cfg.Server.APIPort)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go func() {
		if err := systemd.Watchdog(watchdogCtx); err != nil {
			logger.Warn().Err(err).Msg("systemd watchdog stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		logger.Info().Msg("SIGHUP received, reloading policies...")
		if err := a.authz.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload policies")
		} else {
			logger.Info().Msg("Policies reloaded successfully")
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("accesstime stopped")

	return nil
}
