package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth for the HTTP API. Empty disables auth (local development).
	APIKey string

	// Data layout
	DataDir   string
	UploadDir string
	ImageDir  string

	// Chroma vector index
	ChromaURL string

	// Generation provider
	GenerationModel string
	EmbeddingModel  string
	Temperature     float64

	// Optional unstructured-io partition server. Empty means local parsing only.
	PartitionURL    string
	PartitionAPIKey string

	// PDF partitioning defaults
	MaxCharacters          int
	NewAfterNChars         int
	CombineTextUnderNChars int
	ExtractImages          bool
	ExtractTables          bool
	Languages              []string

	// Enrichment
	MaxRetries          int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	MaxConcurrentEnrich int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Retrieval
	SearchK int

	// Chat streaming
	StreamPieceSize  int
	StreamPieceDelay time.Duration

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	dataDir := envOr("DATA_DIR", "data")
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("DOCUCHAT_API_KEY"),

		DataDir:   dataDir,
		UploadDir: filepath.Join(dataDir, "uploads"),
		ImageDir:  filepath.Join(dataDir, "images"),

		ChromaURL: envOr("CHROMA_URL", "http://localhost:8000"),

		GenerationModel: envOr("GEMINI_MODEL", "gemini-2.5-pro"),
		EmbeddingModel:  envOr("EMBEDDING_MODEL", "text-embedding-004"),
		Temperature:     envFloat("TEMPERATURE", 0.0),

		PartitionURL:    os.Getenv("PARTITION_URL"),
		PartitionAPIKey: os.Getenv("PARTITION_API_KEY"),

		MaxCharacters:          envInt("MAX_CHARACTERS", 3000),
		NewAfterNChars:         envInt("NEW_AFTER_N_CHARS", 3800),
		CombineTextUnderNChars: envInt("COMBINE_TEXT_UNDER_N_CHARS", 200),
		ExtractImages:          envBool("EXTRACT_IMAGES", true),
		ExtractTables:          envBool("EXTRACT_TABLES", true),
		Languages:              []string{envOr("OCR_LANGUAGES", "eng")},

		MaxRetries:          envInt("MAX_RETRIES", 5),
		InitialBackoff:      envDuration("INITIAL_BACKOFF", 2*time.Second),
		MaxBackoff:          envDuration("MAX_BACKOFF", 60*time.Second),
		MaxConcurrentEnrich: envInt("MAX_CONCURRENT_ENRICH", 5),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 20),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		SearchK: envInt("SEARCH_K", 5),

		StreamPieceSize:  envInt("STREAM_PIECE_SIZE", 64),
		StreamPieceDelay: envDuration("STREAM_PIECE_DELAY", 30*time.Millisecond),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 20
	}
	if cfg.MaxConcurrentEnrich <= 0 {
		cfg.MaxConcurrentEnrich = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = 5
	}
	if cfg.StreamPieceSize <= 0 {
		cfg.StreamPieceSize = 64
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.MaxCharacters <= 0 {
		return fmt.Errorf("MAX_CHARACTERS must be positive")
	}
	if c.MaxCharacters >= c.NewAfterNChars {
		return fmt.Errorf("MAX_CHARACTERS (%d) must be less than NEW_AFTER_N_CHARS (%d)",
			c.MaxCharacters, c.NewAfterNChars)
	}
	if c.CombineTextUnderNChars < 0 {
		return fmt.Errorf("COMBINE_TEXT_UNDER_N_CHARS must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
