package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/engine"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/queue"
	"github.com/bobmcallan/optimus/internal/registry"
	"github.com/bobmcallan/optimus/internal/worker"
)

var (
	runConfigPath       string
	runRegistryPath     string
	runLanguage         string
	runQueue            string
	runImage            string
	runRedisAddr        string
	runMaxParallelJobs  int
	runMaxParallelTests int
	runLogLevel         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a worker process bound to a single language (§4.E)",
	RunE:  runWorker,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", os.Getenv("OPTIMUS_CONFIG"), "Path to a TOML config file")
	runCmd.Flags().StringVar(&runRegistryPath, "registry", os.Getenv("OPTIMUS_REGISTRY"), "Path to a TOML language registry file")
	runCmd.Flags().StringVar(&runLanguage, "language", os.Getenv("OPTIMUS_WORKER_LANGUAGE"), "Language this worker process serves (required)")
	runCmd.Flags().StringVar(&runQueue, "queue", os.Getenv("OPTIMUS_WORKER_QUEUE"), "Expected main queue name for the bound language (required)")
	runCmd.Flags().StringVar(&runImage, "image", os.Getenv("OPTIMUS_WORKER_IMAGE"), "Expected sandbox image for the bound language (required)")
	runCmd.Flags().StringVar(&runRedisAddr, "redis-addr", os.Getenv("OPTIMUS_REDIS_ADDR"), "Key/value store address (required)")
	runCmd.Flags().IntVar(&runMaxParallelJobs, "max-parallel-jobs", envInt("MAX_PARALLEL_JOBS", 0), "Maximum concurrent jobs")
	runCmd.Flags().IntVar(&runMaxParallelTests, "max-parallel-tests", envInt("MAX_PARALLEL_TESTS", 0), "Reserved for future per-job test fan-out")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", os.Getenv("OPTIMUS_LOG_LEVEL"), "Log level")
	rootCmd.AddCommand(runCmd)
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func runWorker(cmd *cobra.Command, args []string) error {
	if runLanguage == "" || runQueue == "" || runImage == "" || runRedisAddr == "" {
		return fmt.Errorf("worker: --language, --queue, --image, and --redis-addr (or their env var equivalents) are all required")
	}

	lang, err := models.ParseLanguage(runLanguage)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	cfg, err := common.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runLogLevel != "" {
		cfg.Logging.Level = runLogLevel
	}
	cfg.Store.Addr = runRedisAddr

	logger := common.NewLogger(cfg.Logging.Level)

	reg, err := registry.Load(runRegistryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	store := queue.NewStore(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB)
	defer store.Close()

	eng, err := engine.NewDockerEngine(reg, logger)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	maxJobs := runMaxParallelJobs
	if maxJobs <= 0 {
		maxJobs = cfg.Worker.MaxParallelJobs
	}
	maxTests := runMaxParallelTests
	if maxTests <= 0 {
		maxTests = cfg.Worker.MaxParallelTests
	}

	w, err := worker.New(worker.Config{
		Language:         lang,
		Queue:            runQueue,
		Image:            runImage,
		MaxParallelJobs:  maxJobs,
		MaxParallelTests: maxTests,
	}, reg, store, eng, logger)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	common.PrintWorkerBanner(cfg, string(lang), runQueue, runImage, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := eng.Prewarm(ctx, reg.Enabled()); err != nil {
			logger.Warn().Err(err).Msg("Prewarm failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received, draining in-flight jobs")
		w.Stop()
	}()

	w.Start(ctx)
	logger.Info().Msg("Worker stopped")
	return nil
}
