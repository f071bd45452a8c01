package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ethereum  EthereumConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Scan      ScanConfig
	Heads     HeadsConfig
	Logging   LoggingConfig
	Streaming StreamingConfig
}

type ServerConfig struct {
	Port string
}

type EthereumConfig struct {
	RPCURL    string // Single RPC URL (legacy mode)
	RPCConfig string // Path to provider YAML config (preferred)
}

type RedisConfig struct {
	URI     string
	Enabled bool
}

type CacheConfig struct {
	ChunkSize        int
	FetchConcurrency int
	TiersConfig      string // Path to TTL override YAML (optional)
}

type ScanConfig struct {
	MaxBlocks   uint64
	ResultLimit int
}

type HeadsConfig struct {
	PollInterval  time.Duration
	PrefetchDepth uint64
}

type LoggingConfig struct {
	Level      string
	ToFile     bool
	FilePath   string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type StreamingConfig struct {
	Enabled    bool
	BufferSize int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}

	cfg := &Config{}

	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Ethereum.RPCURL = getEnv("ETH_RPC_URL", "")
	cfg.Ethereum.RPCConfig = getEnv("RPC_CONFIG", "")

	cfg.Redis.URI = getEnv("REDIS_URI", "redis://localhost:6379")
	redisEnabled := getEnv("USE_REDIS", "true")
	cfg.Redis.Enabled = redisEnabled == "true" || redisEnabled == "1"

	chunkSize, err := strconv.Atoi(getEnv("CHUNK_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = 10
	}
	if chunkSize > 100 {
		chunkSize = 100
	}
	cfg.Cache.ChunkSize = chunkSize

	concurrency, err := strconv.Atoi(getEnv("FETCH_CONCURRENCY", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_CONCURRENCY: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	cfg.Cache.FetchConcurrency = concurrency
	cfg.Cache.TiersConfig = getEnv("TIERS_CONFIG", "")

	scanMax, err := strconv.ParseUint(getEnv("SCAN_MAX_BLOCKS", "1000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_MAX_BLOCKS: %w", err)
	}
	cfg.Scan.MaxBlocks = scanMax

	resultLimit, err := strconv.Atoi(getEnv("SCAN_RESULT_LIMIT", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_RESULT_LIMIT: %w", err)
	}
	cfg.Scan.ResultLimit = resultLimit

	pollInterval, err := strconv.Atoi(getEnv("HEAD_POLL_INTERVAL", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEAD_POLL_INTERVAL: %w", err)
	}
	cfg.Heads.PollInterval = time.Duration(pollInterval) * time.Second

	prefetchDepth, err := strconv.ParseUint(getEnv("HEAD_PREFETCH_DEPTH", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid HEAD_PREFETCH_DEPTH: %w", err)
	}
	cfg.Heads.PrefetchDepth = prefetchDepth

	// Logging configuration
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	logToFile := getEnv("LOG_TO_FILE", "false")
	cfg.Logging.ToFile = logToFile == "true" || logToFile == "1"
	cfg.Logging.FilePath = getEnv("LOG_FILE_PATH", "logs/app.log")
	cfg.Logging.Format = getEnv("LOG_FORMAT", "text") // "text" or "json"

	maxSizeMB, err := strconv.Atoi(getEnv("LOG_MAX_SIZE_MB", "100"))
	if err == nil {
		cfg.Logging.MaxSizeMB = maxSizeMB
	} else {
		cfg.Logging.MaxSizeMB = 100
	}

	maxBackups, err := strconv.Atoi(getEnv("LOG_MAX_BACKUPS", "7"))
	if err == nil {
		cfg.Logging.MaxBackups = maxBackups
	} else {
		cfg.Logging.MaxBackups = 7
	}

	maxAgeDays, err := strconv.Atoi(getEnv("LOG_MAX_AGE_DAYS", "30"))
	if err == nil {
		cfg.Logging.MaxAgeDays = maxAgeDays
	} else {
		cfg.Logging.MaxAgeDays = 30
	}

	// Streaming configuration
	streamEnabled := getEnv("ENABLE_STREAM", "true")
	cfg.Streaming.Enabled = streamEnabled == "true" || streamEnabled == "1"
	bufferSize, err := strconv.Atoi(getEnv("STREAM_BUFFER", "64"))
	if err == nil {
		cfg.Streaming.BufferSize = bufferSize
	} else {
		cfg.Streaming.BufferSize = 64
	}

	// Either RPC_CONFIG (YAML) or ETH_RPC_URL (single provider) must be provided
	if cfg.Ethereum.RPCConfig == "" && cfg.Ethereum.RPCURL == "" {
		return nil, fmt.Errorf("either RPC_CONFIG or ETH_RPC_URL must be provided")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
