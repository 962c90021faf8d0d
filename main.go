package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/listingharvester/config"
	"sjsage522/listingharvester/helpers"
	"sjsage522/listingharvester/internal/api"
	"sjsage522/listingharvester/internal/pipeline"
	"sjsage522/listingharvester/logger"
	"sjsage522/listingharvester/services/cache"
	"sjsage522/listingharvester/services/jobs"
	"sjsage522/listingharvester/services/publisher"
	"sjsage522/listingharvester/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	targetURL := flag.String("url", "", "harvest a single listing page and exit")
	output := flag.String("out", "", "where to write the report of -url (defaults to REPORT_FILENAME)")
	flag.Parse()

	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("renderer", cfg.Renderer).
		Dur("max_duration", cfg.MaxDuration).
		Int("stall_rounds", cfg.StallRounds).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if *targetURL != "" {
		go func() {
			<-sigChan
			cancel()
		}()
		if err := runOnce(ctx, cfg, *targetURL, *output); err != nil {
			log.Fatal().Err(err).Msg("Harvest failed")
		}
		return
	}

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	runner, err := pipeline.NewRunnerFromConfig(cfg, services.Cooldown)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create runner")
	}

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		runner,
		services.Queue,
		services.Publisher,
		helpers.NewLogger(logger.ForWorker()),
		cfg.MaxConcurrentRuns,
	)

	workerDone := make(chan struct{})
	go func() {
		log.Info().
			Str("stream", cfg.JobStream).
			Str("group", cfg.JobGroup).
			Str("consumer", services.Queue.Consumer()).
			Msg("Starting harvest worker")
		w.Start()
		close(workerDone)
	}()

	// Start the HTTP API when an address is configured
	var server *http.Server
	serverDone := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		apiServer := api.NewServer(runner, services.Queue, api.Options{
			AllowedOrigins: cfg.APIAllowedOrigins,
			Limiter:        api.NewRateLimiter(ctx, cfg.APIRatePerMinute, 1),
		})
		server = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting HTTP API")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverDone <- err
			}
		}()
	}

	// Wait for shutdown signal, worker exit or server failure
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case <-workerDone:
		log.Info().Msg("Worker exited")
	case err := <-serverDone:
		log.Error().Err(err).Msg("HTTP API exited with error")
	}
	cancel()

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP API shutdown failed")
		}
	}
	<-workerDone
}

// Services holds all the initialized services
type Services struct {
	Cooldown  *cache.Cooldown
	Queue     *jobs.RedisQueue
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Queue != nil {
		s.Queue.Close()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service; collection still works without it
	services.Cooldown = newCooldown(cfg)

	// Initialize job queue
	queue := jobs.NewRedisQueue(cfg.RedisAddr, cfg.RedisDB, cfg.JobStream, cfg.JobGroup, cfg.JobConsumer)
	if err := queue.EnsureGroup(ctx); err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to prepare job stream %s: %w", cfg.JobStream, err)
	}
	services.Queue = queue

	// Initialize publisher
	services.Publisher = publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.ResultStream,
		cfg.ResultStreamMaxLength,
	)

	logger.Info("Connected to Redis at %s (DB: %d, Jobs: %s, Results: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.JobStream, cfg.ResultStream)

	return services, nil
}

// newCooldown returns a memcache backed cooldown, or nil when memcache is unreachable
func newCooldown(cfg *config.Config) *cache.Cooldown {
	if cfg.MemcacheAddr == "" || cfg.Cooldown <= 0 {
		return nil
	}
	mc := cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := mc.Ping(); err != nil {
		logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, host cooldown disabled")
		return nil
	}
	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	return cache.NewCooldown(mc, cfg.Cooldown)
}

// runOnce harvests targetURL and writes the report to path
func runOnce(ctx context.Context, cfg *config.Config, targetURL, path string) error {
	runner, err := pipeline.NewRunnerFromConfig(cfg, nil)
	if err != nil {
		return err
	}

	out, err := runner.Run(ctx, targetURL)
	if err != nil {
		return err
	}

	if path == "" {
		path = out.Filename
	}
	if err := os.WriteFile(path, out.Payload, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("%s Report written to %s", out.Caption, path)
	return nil
}
