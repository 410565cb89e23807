package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Chunking  ChunkingConfig
	Excel     ExcelConfig
	Queue     QueueConfig
	Server    ServerConfig
	Identity  IdentityConfig
	Progress  ProgressConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	URL         string
	SslCertPath string
}

// StorageConfig describes where uploaded files are read from. Paths of the
// form s3://bucket/key go to S3 (or an S3 compatible endpoint such as MinIO),
// everything else is read from LocalRoot.
type StorageConfig struct {
	LocalRoot    string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	Endpoint     string
	UsePathStyle bool
}

type EmbeddingConfig struct {
	Provider     string // "openai" or "gemini"
	OpenAIAPIKey string
	GeminiAPIKey string
	Model        string
	Dimension    int
	BatchSize    int
	MaxRetries   int
	BatchPause   time.Duration
	MaxTokens    int
}

type VectorConfig struct {
	Backend       string // "qdrant", "pgvector" or "memory"
	QdrantHost    string
	QdrantPort    int
	QdrantAPIKey  string
	QdrantUseTLS  bool
	Distance      string
	UpsertBudget  int
	UpsertMaxSize int
}

type ChunkingConfig struct {
	TargetChars     int
	MinChars        int
	OverlapElements int
	MaxRowsPerChunk int
}

type ExcelConfig struct {
	SheetPriority []string
	MaxSheets     int
	MaxCells      int
}

type QueueConfig struct {
	Backend   string // "memory" or "redis"
	Workers   int
	RedisAddr string
	RedisPass string
	RedisKey  string
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type IdentityConfig struct {
	Strict      bool
	AutoMigrate bool
}

type ProgressConfig struct {
	StaleAfter   time.Duration
	RedisChannel string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			SslCertPath: getEnv("SSL_CERT_PATH", ""),
		},
		Storage: StorageConfig{
			LocalRoot:    getEnv("UPLOAD_ROOT", ""),
			AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
			AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
			AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
			BucketName:   getEnv("BUCKET_NAME", ""),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			UsePathStyle: getEnvBool("S3_PATH_STYLE", false),
		},
		Embedding: EmbeddingConfig{
			Provider:     getEnv("EMBED_PROVIDER", "openai"),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			Model:        getEnv("EMBED_MODEL", "text-embedding-3-small"),
			Dimension:    getEnvInt("EMBED_DIM", 1536),
			BatchSize:    getEnvInt("EMBED_BATCH_SIZE", 50),
			MaxRetries:   getEnvInt("EMBED_MAX_RETRIES", 2),
			BatchPause:   getEnvDuration("EMBED_BATCH_PAUSE", 200*time.Millisecond),
			MaxTokens:    getEnvInt("EMBED_MAX_TOKENS", 8191),
		},
		Vector: VectorConfig{
			Backend:       getEnv("VECTOR_BACKEND", "qdrant"),
			QdrantHost:    getEnv("QDRANT_HOST", "localhost"),
			QdrantPort:    getEnvInt("QDRANT_PORT", 6334),
			QdrantAPIKey:  getEnv("QDRANT_API_KEY", ""),
			QdrantUseTLS:  getEnvBool("QDRANT_TLS", false),
			Distance:      getEnv("VECTOR_DISTANCE", "cosine"),
			UpsertBudget:  getEnvInt("UPSERT_BYTE_BUDGET", 10<<20),
			UpsertMaxSize: getEnvInt("UPSERT_MAX_POINTS", 100),
		},
		Chunking: ChunkingConfig{
			TargetChars:     getEnvInt("CHUNK_TARGET_CHARS", 1500),
			MinChars:        getEnvInt("CHUNK_MIN_CHARS", 10),
			OverlapElements: getEnvInt("CHUNK_OVERLAP_ELEMENTS", 1),
			MaxRowsPerChunk: getEnvInt("CHUNK_MAX_ROWS", 50),
		},
		Excel: ExcelConfig{
			SheetPriority: getEnvList("EXCEL_SHEET_PRIORITY", nil),
			MaxSheets:     getEnvInt("EXCEL_MAX_SHEETS", 10),
			MaxCells:      getEnvInt("EXCEL_MAX_CELLS", 200000),
		},
		Queue: QueueConfig{
			Backend:   getEnv("QUEUE_BACKEND", "memory"),
			Workers:   getEnvInt("QUEUE_WORKERS", 4),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPass: getEnv("REDIS_PASSWORD", ""),
			RedisKey:  getEnv("REDIS_QUEUE_KEY", "vectorsync:jobs"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Identity: IdentityConfig{
			Strict:      getEnvBool("IDENTITY_STRICT", true),
			AutoMigrate: getEnvBool("IDENTITY_AUTO_MIGRATE", true),
		},
		Progress: ProgressConfig{
			StaleAfter:   getEnvDuration("PROCESSING_STALE_AFTER", 30*time.Minute),
			RedisChannel: getEnv("PROGRESS_CHANNEL", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports settings the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "gemini":
		if c.Embedding.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	default:
		errs = append(errs, errors.New("EMBED_PROVIDER must be openai or gemini"))
	}
	switch c.Vector.Backend {
	case "qdrant", "pgvector", "memory":
	default:
		errs = append(errs, errors.New("VECTOR_BACKEND must be qdrant, pgvector or memory"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("EMBED_DIM must be positive"))
	}
	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
