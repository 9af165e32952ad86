package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	HTTPPort    string
	LogDir      string
	LogLevel    string

	Database  DatabaseConfig
	Blob      BlobConfig
	Queue     QueueConfig
	Embedding EmbeddingConfig
	Cache     CacheConfig
	Search    SearchConfig
	Ingest    IngestConfig
	Auth      AuthConfig
	Notify    NotifyConfig

	// ReconcileInterval controls the vector-index drift repair job.
	// Zero disables it.
	ReconcileInterval time.Duration
}

type DatabaseConfig struct {
	URL string
}

type BlobConfig struct {
	// Backend is "s3" or "fs".
	Backend  string
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible stores
	Dir      string // fs backend root
}

type QueueConfig struct {
	Workers      int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	Visibility   time.Duration
	PollInterval time.Duration
}

type EmbeddingConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Dimension        int
	Timeout          time.Duration
	MaxRetries       int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	TTL           time.Duration
}

type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
	// CandidateMultiplier sizes the ANN retrieval: K = limit * multiplier,
	// leaving room for post-filtering.
	CandidateMultiplier int
	SimilarityWeight    float64
	SkillBoost          float64
	TitleBoost          float64
}

type IngestConfig struct {
	MaxUploadBytes int64
	// Dedup returns the existing record for a byte-identical upload
	// instead of creating a new one. Off by default.
	Dedup bool
}

type AuthConfig struct {
	// Keys holds "role:bcrypt-hash" pairs separated by semicolons, e.g.
	// "recruiter:$2a$10$...;admin:$2a$10$...".
	Keys string
}

type NotifyConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	FromNumber       string
	OperatorNumber   string
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8090"),
		LogDir:      getEnv("LOG_DIR", "logs/talentsift"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Blob: BlobConfig{
			Backend:  getEnv("BLOB_BACKEND", "fs"),
			Bucket:   getEnv("BLOB_BUCKET", "talentsift-resumes"),
			Region:   getEnv("AWS_REGION", "us-east-1"),
			Endpoint: getEnv("BLOB_ENDPOINT", ""),
			Dir:      getEnv("BLOB_DIR", "data/blobs"),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 4),
			MaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBase:  getEnvAsDuration("QUEUE_BACKOFF_BASE", 30*time.Second),
			BackoffCap:   getEnvAsDuration("QUEUE_BACKOFF_CAP", 15*time.Minute),
			Visibility:   getEnvAsDuration("QUEUE_VISIBILITY", 2*time.Minute),
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL:          getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			Model:            getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
			Dimension:        getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			Timeout:          getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			MaxRetries:       getEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
			BreakerThreshold: getEnvAsInt("EMBEDDING_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getEnvAsDuration("EMBEDDING_BREAKER_COOLDOWN", time.Minute),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			TTL:           getEnvAsDuration("SEARCH_CACHE_TTL", 5*time.Minute),
		},
		Search: SearchConfig{
			DefaultLimit:        getEnvAsInt("SEARCH_DEFAULT_LIMIT", 10),
			MaxLimit:            getEnvAsInt("SEARCH_MAX_LIMIT", 50),
			CandidateMultiplier: getEnvAsInt("SEARCH_CANDIDATE_MULTIPLIER", 4),
			SimilarityWeight:    getEnvAsFloat("SEARCH_SIMILARITY_WEIGHT", 0.7),
			SkillBoost:          getEnvAsFloat("SEARCH_SKILL_BOOST", 0.25),
			TitleBoost:          getEnvAsFloat("SEARCH_TITLE_BOOST", 0.05),
		},
		Ingest: IngestConfig{
			MaxUploadBytes: int64(getEnvAsInt("INGEST_MAX_UPLOAD_BYTES", 10<<20)),
			Dedup:          getEnvAsBool("INGEST_DEDUP", false),
		},
		Auth: AuthConfig{
			Keys: getEnv("API_KEYS", ""),
		},
		Notify: NotifyConfig{
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:       getEnv("TWILIO_FROM_NUMBER", ""),
			OperatorNumber:   getEnv("OPERATOR_PHONE_NUMBER", ""),
		},
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 10*time.Minute),
	}
}

// Validate checks the settings that have no workable default.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Blob.Backend != "s3" && c.Blob.Backend != "fs" {
		return fmt.Errorf("BLOB_BACKEND must be \"s3\" or \"fs\", got %q", c.Blob.Backend)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.ToLower(getEnv(key, ""))
	switch strValue {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
