package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/metrics"
	"github.com/bobmcallan/optimus/internal/queue"
	"github.com/bobmcallan/optimus/internal/registry"
	"github.com/bobmcallan/optimus/internal/server"
)

var (
	serveConfigPath   string
	serveRegistryPath string
	serveAddr         string
	serveRedisAddr    string
	serveLogLevel     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission front-end (§4.F)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", os.Getenv("OPTIMUS_CONFIG"), "Path to a TOML config file")
	serveCmd.Flags().StringVar(&serveRegistryPath, "registry", os.Getenv("OPTIMUS_REGISTRY"), "Path to a TOML language registry file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address host:port, overrides config/env")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "Key/value store address, overrides config/env")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level, overrides config/env")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := common.LoadConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyServeFlagOverrides(cfg)

	logger := common.NewLogger(cfg.Logging.Level)

	reg, err := registry.Load(serveRegistryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	store := queue.NewStore(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	defer store.Close()

	collector := metrics.New(reg, store, logger)

	srv := server.NewServer(cfg, store, reg, collector, collector.Handler(), logger)
	common.PrintAPIBanner(cfg, logger)

	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	go collector.RunCompletionSubscriber(subCtx, store)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigCh:
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	common.PrintShutdownBanner(logger)
	return nil
}

func applyServeFlagOverrides(cfg *common.Config) {
	if serveAddr != "" {
		host, port, err := splitHostPort(serveAddr)
		if err == nil {
			cfg.Server.Host = host
			cfg.Server.Port = port
		}
	}
	if serveRedisAddr != "" {
		cfg.Store.Addr = serveRedisAddr
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid addr %q: expected host:port", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in addr %q: %w", addr, err)
	}
	return addr[:idx], port, nil
}
