// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process configuration, read from the environment. A .env file in
// the working directory is loaded by the binaries through godotenv/autoload.
type Config struct {
	Port string

	DatabaseURL string

	RedisAddr    string
	RedisDB      int
	UserCacheTTL time.Duration

	PistonURL        string
	JudgeRunTimeout  time.Duration
	JudgeRetryLimit  int
	JudgeWorkers     int
	JudgeHTTPTimeout time.Duration

	RoomTickInterval time.Duration

	// TokenExpire of zero means tokens never expire.
	TokenExpire time.Duration

	LogLevel  string
	LogFormat string

	HistorianQueue     string
	HistorianBatchSize int
	HistorianFlush     time.Duration
}

// Load reads every setting, falling back to development defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		PistonURL:          getEnv("PISTON_URL", "https://emkc.org/api/v2/piston"),
		JudgeRunTimeout:    time.Duration(getEnvInt("JUDGE_RUN_TIMEOUT_MS", 1000)) * time.Millisecond,
		JudgeRetryLimit:    getEnvInt("JUDGE_RETRY_LIMIT", 2),
		JudgeWorkers:       getEnvInt("JUDGE_WORKERS", 8),
		LogLevel:           getEnv("LOG_LEVEL", "debug"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		HistorianQueue:     getEnv("HISTORIAN_QUEUE_NAME", "codincod_judge_runs"),
		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			getEnv("PG_HOST", "localhost"),
			getEnv("PG_PORT", "5432"),
			os.Getenv("PG_DATABASE"),
		)
	}

	var err error
	if cfg.UserCacheTTL, err = getEnvDuration("USER_CACHE_TTL", 10*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.JudgeHTTPTimeout, err = getEnvDuration("JUDGE_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RoomTickInterval, err = getEnvDuration("ROOM_TICK_INTERVAL", time.Second); err != nil {
		return cfg, err
	}

	switch expire := os.Getenv("TOKEN_EXPIRE_TIME"); expire {
	case "", "0", "never":
		cfg.TokenExpire = 0
	default:
		d, err := time.ParseDuration(expire)
		if err != nil {
			return cfg, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
		}
		cfg.TokenExpire = d
	}

	if cfg.JudgeRetryLimit < 1 {
		return cfg, fmt.Errorf("JUDGE_RETRY_LIMIT must be at least 1, got %d", cfg.JudgeRetryLimit)
	}
	if cfg.JudgeWorkers < 1 {
		return cfg, fmt.Errorf("JUDGE_WORKERS must be at least 1, got %d", cfg.JudgeWorkers)
	}
	return cfg, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
