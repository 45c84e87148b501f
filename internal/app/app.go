// Package app wires the configured backends into a runnable fusion pipeline.
// The API server and fusionctl share it.
package app

import (
	"context"
	"fmt"

	"fabric-fusion-backend/internal/assets"
	"fabric-fusion-backend/internal/config"
	"fabric-fusion-backend/internal/database"
	"fabric-fusion-backend/internal/generation"
	"fabric-fusion-backend/internal/inference"
	"fabric-fusion-backend/internal/jobstore"
	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/perception"
	"fabric-fusion-backend/internal/pipeline"
	"fabric-fusion-backend/internal/queue"
	"fabric-fusion-backend/internal/realtime"
	"fabric-fusion-backend/internal/supabase"
)

// upscaleFactor is requested from the remote upscaler.
const upscaleFactor = 2

type App struct {
	Config       *config.Config
	Log          *logger.Logger
	Store        jobstore.Store
	Assets       assets.Store
	Queue        queue.Queue
	Events       realtime.Publisher
	Orchestrator *pipeline.Orchestrator

	closers []func() error
}

// Build connects every backend named by cfg. The returned App must be closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initAssets(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initPipeline()
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.JobStore {
	case config.JobStorePostgres:
		migrator, err := database.NewMigrator(cfg.DatabaseURL, a.Log)
		if err != nil {
			return fmt.Errorf("init migrator: %w", err)
		}
		err = migrator.Run(ctx)
		migrator.Close()
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		a.Log.Info("Migrations completed successfully")

		dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init database client: %w", err)
		}
		a.closers = append(a.closers, dbClient.Close)
		a.Store = dbClient
	case config.JobStoreREST:
		client, err := supabase.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("init supabase client: %w", err)
		}
		a.Store = supabase.NewRESTJobStore(client)
	default:
		a.Log.Warn("Using in-memory job store; jobs are lost on restart")
		a.Store = jobstore.NewMemoryStore()
	}
	a.Log.Info("Job store ready", "backend", cfg.JobStore)
	return nil
}

func (a *App) initAssets(ctx context.Context) error {
	cfg := a.Config
	switch cfg.AssetBackend {
	case config.AssetBackendS3:
		store, err := assets.NewS3Store(ctx, assets.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("init s3 asset store: %w", err)
		}
		a.Assets = store
	default:
		store, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
		if err != nil {
			return fmt.Errorf("init storage client: %w", err)
		}
		a.Assets = store
	}
	a.Log.Info("Asset store ready", "backend", cfg.AssetBackend)
	return nil
}

// initRedis picks the Streams queue and pub/sub events when REDIS_ADDR is
// set, and the in-process queue without events otherwise.
func (a *App) initRedis(ctx context.Context) error {
	cfg := a.Config
	if cfg.RedisAddr == "" {
		a.Log.Warn("REDIS_ADDR not set; using in-process queue and no job events")
		a.Queue = queue.NewLocalQueue(0, a.Log)
		a.Events = realtime.NopPublisher{}
		a.closers = append(a.closers, a.Queue.Close)
		return nil
	}

	q, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.RedisStream,
	}, a.Log)
	if err != nil {
		return fmt.Errorf("init job queue: %w", err)
	}
	a.Queue = q
	a.closers = append(a.closers, q.Close)

	publisher, err := realtime.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisEventsChannel)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	a.Events = publisher
	a.closers = append(a.closers, publisher.Close)
	return nil
}

func (a *App) initPipeline() {
	cfg := a.Config
	if cfg.InferenceAPIKey == "" {
		a.Log.Warn("INFERENCE_API_KEY not set; every model call will fail and jobs will use local fallbacks")
	}

	model := inference.NewClient(cfg.InferenceBaseURL, cfg.InferenceAPIKey, cfg.InferenceRatePerSec)
	runner := generation.NewClient(model, cfg.RetryBaseDelay, a.Log)
	fetcher := assets.NewHTTPFetcher()
	attempts := cfg.GenerationMaxAttempts

	a.Orchestrator = pipeline.New(pipeline.Deps{
		Store:     a.Store,
		Assets:    a.Assets,
		Fetcher:   fetcher,
		Face:      perception.NewFaceGuard(runner, fetcher, cfg.FaceModelID, attempts),
		Segmenter: perception.NewSegmenter(runner, fetcher, cfg.SegmentationModelID, attempts),
		Edges:     perception.NewEdgeMapper(runner, fetcher, cfg.EdgeModelID, attempts),
		Fabric:    perception.NewFabricExtractor(fetcher),
		Generator: runner,
		Upscaler:  perception.NewUpscaler(runner, cfg.UpscaleModelID, upscaleFactor, attempts),
		Events:    a.Events,
		Log:       a.Log,
	}, pipeline.Options{
		GenerationModelID:  cfg.GenerationModelID,
		GenerationAttempts: attempts,
		StageTimeout:       cfg.StageTimeout,
		JobTimeout:         cfg.JobTimeout,
		MaxCandidates:      cfg.MaxCandidates,
	})
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Failed to close backend", "error", err)
		}
	}
	a.closers = nil
}
