package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/cache"
	"github.com/talentsift/talentsift/config"
	"github.com/talentsift/talentsift/db"
	"github.com/talentsift/talentsift/embedding"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/extractor"
	"github.com/talentsift/talentsift/handlers"
	"github.com/talentsift/talentsift/logging"
	"github.com/talentsift/talentsift/notify"
	"github.com/talentsift/talentsift/queue"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/search"
	"github.com/talentsift/talentsift/server"
	"github.com/talentsift/talentsift/vectorindex"
	"github.com/talentsift/talentsift/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool, cfg.Embedding.Dimension); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	blobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	events := event.NewEmitter(logger)
	store := resume.NewPostgresStore(pool, logger)
	taskQueue := queue.NewPostgresQueue(pool, queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
	}, logger)
	index := vectorindex.NewPostgresIndex(pool, logger)
	embedder := embedding.NewClient(embedding.Config{
		BaseURL:          cfg.Embedding.BaseURL,
		APIKey:           cfg.Embedding.APIKey,
		Model:            cfg.Embedding.Model,
		Dimension:        cfg.Embedding.Dimension,
		Timeout:          cfg.Embedding.Timeout,
		MaxRetries:       cfg.Embedding.MaxRetries,
		BreakerThreshold: cfg.Embedding.BreakerThreshold,
		BreakerCooldown:  cfg.Embedding.BreakerCooldown,
	}, logger)

	searchCache, cacheCheck := buildCache(cfg, logger)

	searchService := search.NewService(store, index, embedder, searchCache, events, search.Config{
		DefaultLimit:        cfg.Search.DefaultLimit,
		MaxLimit:            cfg.Search.MaxLimit,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		SimilarityWeight:    cfg.Search.SimilarityWeight,
		SkillBoost:          cfg.Search.SkillBoost,
		TitleBoost:          cfg.Search.TitleBoost,
		CacheTTL:            cfg.Cache.TTL,
	}, logger)

	notifier := buildNotifier(cfg, logger)
	docExtractor := extractor.New(logger)

	pipelineWorker := worker.New(taskQueue, store, blobs, docExtractor, embedder, index,
		notifier, events, worker.Config{
			Workers:      cfg.Queue.Workers,
			Visibility:   cfg.Queue.Visibility,
			PollInterval: cfg.Queue.PollInterval,
		}, logger)

	uploadCfg := handlers.UploadConfig{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Dedup:          cfg.Ingest.Dedup,
	}
	auth := server.NewAuthenticator(cfg.Auth.Keys, logger)
	router := server.SetupRoutes(server.Deps{
		Upload:     handlers.NewUploadHandler(store, blobs, taskQueue, events, uploadCfg, logger),
		Search:     handlers.NewSearchHandler(searchService, logger),
		Resume:     handlers.NewResumeHandler(store, blobs, taskQueue, index, events, uploadCfg, logger),
		DeadLetter: handlers.NewDeadLetterHandler(taskQueue, events, logger),
		Health:     buildHealthHandler(pool, cacheCheck, logger),
		Auth:       auth,
		Logger:     logger,
	})
	n := server.SetupNegroni(router)
	srv := server.NewServer(":"+cfg.HTTPPort, n)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipelineWorker.Run(ctx)
	})
	if cfg.ReconcileInterval > 0 {
		reconciler := worker.NewReconciler(store, index, blobs, embedder, events,
			cfg.ReconcileInterval, logger)
		g.Go(func() error {
			return reconciler.Run(ctx)
		})
	}
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("shutdown with error", slog.String("error", err.Error()))
	}
	logger.Info("shutdown complete")
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (blobstore.Store, error) {
	if cfg.Blob.Backend == "s3" {
		return blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:   cfg.Blob.Bucket,
			Region:   cfg.Blob.Region,
			Endpoint: cfg.Blob.Endpoint,
		}, logger)
	}
	return blobstore.NewFSStore(cfg.Blob.Dir, logger)
}

// buildCache returns the search cache plus a health probe for it. Without
// a Redis address caching stays in-process, which suits single-node runs.
func buildCache(cfg config.Config, logger *slog.Logger) (cache.Cache, handlers.CheckFunc) {
	if cfg.Cache.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, using in-process search cache")
		return cache.NewMemoryCache(), nil
	}
	redisCache := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, logger)
	return redisCache, redisCache.Ping
}

func buildNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.Notify.TwilioAccountSID == "" || cfg.Notify.OperatorNumber == "" {
		logger.Info("Twilio not configured, dead-letter alerts disabled")
		return notify.NoopNotifier{}
	}
	return notify.NewSMSNotifier(cfg.Notify.TwilioAccountSID, cfg.Notify.TwilioAuthToken,
		cfg.Notify.FromNumber, cfg.Notify.OperatorNumber, logger)
}

func buildHealthHandler(pool *pgxpool.Pool, cacheCheck handlers.CheckFunc, logger *slog.Logger) *handlers.HealthHandler {
	checks := map[string]handlers.CheckFunc{
		"database": func(ctx context.Context) error {
			return db.HealthCheck(ctx, pool, 3*time.Second)
		},
	}
	if cacheCheck != nil {
		checks["cache"] = cacheCheck
	}
	return handlers.NewHealthHandler(checks, logger)
}

func initLogger(cfg config.Config) (*slog.Logger, error) {
	fileHandler, err := logging.NewDailyFileHandler(cfg.LogDir, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	return slog.New(fileHandler), nil
}
