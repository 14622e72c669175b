package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// JWTSecret enables bearer-token auth on the API when non-empty.
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey       string
	AnthropicKey    string
	DefaultProvider string
	DefaultModel    string
}

type EmbeddingConfig struct {
	Model     string
	Dimension int
}

type VectorConfig struct {
	Backend string // "pgvector" or "memory"
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap float64
	MinChunkSize int
	BatchSize    int
	MaxAttempts  int
	Concurrency  int
	CallTimeout  time.Duration
}

type RetrievalConfig struct {
	TopK int
}

type SessionConfig struct {
	TTL      time.Duration
	MaxTurns int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	dimension, err := getEnvInt("EMBEDDING_DIMENSION", 1536)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_DIMENSION: %w", err)
	}
	chunkSize, err := getEnvInt("CHUNK_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}
	chunkOverlap, err := getEnvFloat("CHUNK_OVERLAP", 0.2)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_OVERLAP: %w", err)
	}
	minChunkSize, err := getEnvInt("MIN_CHUNK_SIZE", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_CHUNK_SIZE: %w", err)
	}
	batchSize, err := getEnvInt("INGEST_BATCH_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_BATCH_SIZE: %w", err)
	}
	maxAttempts, err := getEnvInt("INGEST_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_MAX_ATTEMPTS: %w", err)
	}
	concurrency, err := getEnvInt("INGEST_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CONCURRENCY: %w", err)
	}
	callTimeout, err := getEnvDuration("EXTERNAL_CALL_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXTERNAL_CALL_TIMEOUT: %w", err)
	}
	topK, err := getEnvInt("RETRIEVE_TOP_K", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRIEVE_TOP_K: %w", err)
	}
	sessionTTL, err := getEnvDuration("SESSION_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	sessionMaxTurns, err := getEnvInt("SESSION_MAX_TURNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX_TURNS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider: getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:    getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
		},
		Embedding: EmbeddingConfig{
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: dimension,
		},
		Vector: VectorConfig{
			Backend: getEnv("VECTOR_BACKEND", "pgvector"),
		},
		Ingest: IngestConfig{
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			MinChunkSize: minChunkSize,
			BatchSize:    batchSize,
			MaxAttempts:  maxAttempts,
			Concurrency:  concurrency,
			CallTimeout:  callTimeout,
		},
		Retrieval: RetrievalConfig{
			TopK: topK,
		},
		Session: SessionConfig{
			TTL:      sessionTTL,
			MaxTurns: sessionMaxTurns,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	// The document registry lives in Postgres even when the vector index
	// runs in memory.
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.LLM.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
