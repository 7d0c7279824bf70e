package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Matching MatchingConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MatchingConfig governs the study-group matching engine.
type MatchingConfig struct {
	MinGroupSize          int
	MaxGroupSize          int
	AllowUndersizedGroups bool
	ScoringStrategy       string
	RunDeadline           time.Duration
	ResultTTL             time.Duration
	CourseParallelism     int
	CacheEnabled          bool
	CacheTTL              time.Duration
	PersistRuns           bool
}

// ExportsConfig toggles result export endpoints and the async run queue.
type ExportsConfig struct {
	Enabled           bool
	WorkerConcurrency int
	WorkerRetries     int
	Dir               string
	Retention         time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Matching = MatchingConfig{
		MinGroupSize:          v.GetInt("MATCH_MIN_GROUP_SIZE"),
		MaxGroupSize:          v.GetInt("MATCH_MAX_GROUP_SIZE"),
		AllowUndersizedGroups: v.GetBool("MATCH_ALLOW_UNDERSIZED"),
		ScoringStrategy:       v.GetString("MATCH_SCORING_STRATEGY"),
		RunDeadline:           parseDuration(v.GetString("MATCH_RUN_DEADLINE"), 30*time.Second),
		ResultTTL:             parseDuration(v.GetString("MATCH_RESULT_TTL"), 30*time.Minute),
		CourseParallelism:     v.GetInt("MATCH_COURSE_PARALLELISM"),
		CacheEnabled:          v.GetBool("MATCH_CACHE_ENABLED"),
		CacheTTL:              parseDuration(v.GetString("MATCH_CACHE_TTL"), 10*time.Minute),
		PersistRuns:           v.GetBool("MATCH_PERSIST_RUNS"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		WorkerConcurrency: v.GetInt("EXPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORT_WORKER_RETRIES"),
		Dir:               v.GetString("EXPORT_DIR"),
		Retention:         parseDuration(v.GetString("EXPORT_RETENTION"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "study_match")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MATCH_MIN_GROUP_SIZE", 3)
	v.SetDefault("MATCH_MAX_GROUP_SIZE", 5)
	v.SetDefault("MATCH_ALLOW_UNDERSIZED", false)
	v.SetDefault("MATCH_SCORING_STRATEGY", "shared")
	v.SetDefault("MATCH_RUN_DEADLINE", "30s")
	v.SetDefault("MATCH_RESULT_TTL", "30m")
	v.SetDefault("MATCH_COURSE_PARALLELISM", 4)
	v.SetDefault("MATCH_CACHE_ENABLED", false)
	v.SetDefault("MATCH_CACHE_TTL", "10m")
	v.SetDefault("MATCH_PERSIST_RUNS", false)

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORT_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORT_WORKER_RETRIES", 3)
	v.SetDefault("EXPORT_DIR", "")
	v.SetDefault("EXPORT_RETENTION", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
