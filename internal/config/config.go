package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	JobStorePostgres = "postgres"
	JobStoreREST     = "rest"
	JobStoreMemory   = "memory"

	AssetBackendSupabase = "supabase"
	AssetBackendS3       = "s3"
)

type Config struct {
	// Inference API
	InferenceBaseURL    string
	InferenceAPIKey     string
	InferenceRatePerSec float64

	FaceModelID         string
	SegmentationModelID string
	EdgeModelID         string
	GenerationModelID   string
	UpscaleModelID      string

	// Pipeline
	GenerationMaxAttempts int
	RetryBaseDelay        time.Duration
	StageTimeout          time.Duration
	JobTimeout            time.Duration
	MaxCandidates         int
	WorkerConcurrency     int

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Storage backends
	JobStore     string
	AssetBackend string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PublicBaseURL   string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// Redis
	RedisAddr          string
	RedisPassword      string
	RedisStream        string
	RedisEventsChannel string

	// Database
	DatabaseURL string

	// Server
	Port           string
	Environment    string
	BaseURL        string
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{
		InferenceBaseURL:    getEnv("INFERENCE_BASE_URL", "https://api.bytez.com/models/v2"),
		InferenceAPIKey:     getEnv("INFERENCE_API_KEY", ""),
		InferenceRatePerSec: getEnvFloat("INFERENCE_RATE_PER_SEC", 4),

		FaceModelID:         getEnv("FACE_MODEL_ID", "face-parsing/face-detector"),
		SegmentationModelID: getEnv("SEGMENTATION_MODEL_ID", "facebook/sam-vit-base"),
		EdgeModelID:         getEnv("EDGE_MODEL_ID", "lllyasviel/control_v11p_sd15_canny"),
		GenerationModelID:   getEnv("GENERATION_MODEL_ID", "stabilityai/stable-diffusion-xl-base-1.0"),
		UpscaleModelID:      getEnv("UPSCALE_MODEL_ID", "xinntao/Real-ESRGAN"),

		GenerationMaxAttempts: getEnvInt("GENERATION_MAX_ATTEMPTS", 3),
		RetryBaseDelay:        time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 400)) * time.Millisecond,
		StageTimeout:          time.Duration(getEnvInt("STAGE_TIMEOUT_SECONDS", 90)) * time.Second,
		JobTimeout:            time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 900)) * time.Second,
		MaxCandidates:         getEnvInt("MAX_CANDIDATES", 4),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 2),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "fusion-assets"),

		JobStore:     getEnv("JOB_STORE", JobStorePostgres),
		AssetBackend: getEnv("ASSET_BACKEND", AssetBackendSupabase),

		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisStream:        getEnv("REDIS_STREAM", "fusion_jobs"),
		RedisEventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "fusion:events"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	switch c.JobStore {
	case JobStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when JOB_STORE=%s", JobStorePostgres)
		}
	case JobStoreREST:
		if c.SupabaseURL == "" || c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_PUBLISHABLE_KEY are required when JOB_STORE=%s", JobStoreREST)
		}
	case JobStoreMemory:
	default:
		return fmt.Errorf("unknown JOB_STORE %q", c.JobStore)
	}

	switch c.AssetBackend {
	case AssetBackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
		}
	case AssetBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ASSET_BACKEND=%s", AssetBackendS3)
		}
	default:
		return fmt.Errorf("unknown ASSET_BACKEND %q", c.AssetBackend)
	}

	if c.GenerationMaxAttempts < 1 {
		return fmt.Errorf("GENERATION_MAX_ATTEMPTS must be at least 1")
	}
	if c.MaxCandidates < 1 {
		return fmt.Errorf("MAX_CANDIDATES must be at least 1")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
