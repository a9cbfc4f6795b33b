// Package config loads process configuration from the environment. The .env
// file named by DOXA_ENV (default ".env") is loaded first, then its .secret
// sidecar; explicit environment variables always win over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/doxalabs/doxa/internal/domain"
)

// Backend names the storage implementation the server runs on.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config is the single process-wide configuration, built once at startup.
type Config struct {
	ServerPort int
	LogLevel   string

	Backend     string
	DatabaseURL string
	SQLitePath  string

	MigrationsPath string

	ExtractionProvider string
	ExtractionAPIKey   string
	ExtractionModel    string

	EmbeddingProvider string
	EmbeddingAPIKey   string
	EmbeddingModel    string

	RateLimitRPS   float64
	RateLimitBurst int

	MaintenanceInterval       time.Duration
	RelationshipRetentionDays int

	Engine domain.EngineConfig
}

// Load reads the env files and assembles the Config. Engine knobs fall back
// to the documented defaults when unset.
func Load() (*Config, error) {
	envFile := os.Getenv("DOXA_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Both files are optional; a missing file is not an error.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	cfg := &Config{
		ServerPort: intEnv("SERVER_PORT", 8080),
		LogLevel:   stringEnv("LOG_LEVEL", "info"),

		Backend:     stringEnv("BACKEND", BackendMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  stringEnv("SQLITE_PATH", "doxa.db"),

		MigrationsPath: stringEnv("MIGRATIONS_PATH", "migrations"),

		ExtractionProvider: stringEnv("EXTRACTION_PROVIDER", "pattern"),
		ExtractionAPIKey:   firstEnv("EXTRACTION_API_KEY", "OPENAI_API_KEY"),
		ExtractionModel:    os.Getenv("EXTRACTION_MODEL"),

		EmbeddingProvider: stringEnv("EMBEDDING_PROVIDER", "mock"),
		EmbeddingAPIKey:   firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY"),
		EmbeddingModel:    os.Getenv("EMBEDDING_MODEL"),

		RateLimitRPS:   floatEnv("RATE_LIMIT_RPS", 100),
		RateLimitBurst: intEnv("RATE_LIMIT_BURST", 20),

		MaintenanceInterval:       durationEnv("MAINTENANCE_INTERVAL", time.Hour),
		RelationshipRetentionDays: intEnv("RELATIONSHIP_RETENTION_DAYS", 90),

		Engine: loadEngine(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEngine() domain.EngineConfig {
	e := domain.DefaultEngineConfig()
	e.ReinforcementIncrement = floatEnv("REINFORCEMENT_INCREMENT", e.ReinforcementIncrement)
	e.NeighborSimilarityFloor = floatEnv("NEIGHBOR_SIMILARITY_FLOOR", e.NeighborSimilarityFloor)
	e.NeighborLookupK = intEnv("NEIGHBOR_LOOKUP_K", e.NeighborLookupK)
	e.MemorySimilarityFloor = floatEnv("MEMORY_SIMILARITY_FLOOR", e.MemorySimilarityFloor)
	e.HighConfidenceThreshold = floatEnv("HIGH_CONFIDENCE_THRESHOLD", e.HighConfidenceThreshold)
	e.LowConfidenceThreshold = floatEnv("LOW_CONFIDENCE_THRESHOLD", e.LowConfidenceThreshold)
	e.MaxContentLength = intEnv("MAX_CONTENT_LENGTH", e.MaxContentLength)
	e.MaxGraphTraversalDepth = intEnv("MAX_GRAPH_TRAVERSAL_DEPTH", e.MaxGraphTraversalDepth)
	e.EmbeddingDimension = intEnv("EMBEDDING_DIMENSION", e.EmbeddingDimension)
	e.SimilarityMetric = domain.SimilarityMetric(stringEnv("SIMILARITY_METRIC", string(e.SimilarityMetric)))
	e.ClockSkew = durationEnv("CLOCK_SKEW", e.ClockSkew)

	if s := os.Getenv("RESOLUTION_STRATEGY_BELIEF_BELIEF"); s != "" {
		e.ResolutionStrategies[string(domain.ConflictBeliefBelief)] = domain.ResolutionStrategy(s)
	}
	if s := os.Getenv("RESOLUTION_STRATEGY_BELIEF_MEMORY"); s != "" {
		e.ResolutionStrategies[string(domain.ConflictBeliefMemory)] = domain.ResolutionStrategy(s)
	}
	if s := os.Getenv("RESOLUTION_STRATEGY_DEFAULT"); s != "" {
		e.ResolutionStrategies[domain.StrategyDefaultKey] = domain.ResolutionStrategy(s)
	}
	return e
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown BACKEND %q (valid options: postgres, sqlite, memory)", c.Backend)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range", c.ServerPort)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit rps/burst must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("MAINTENANCE_INTERVAL must be positive")
	}
	if c.RelationshipRetentionDays <= 0 {
		return fmt.Errorf("RELATIONSHIP_RETENTION_DAYS must be positive")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
