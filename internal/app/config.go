package app

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/primestride/atlas-backend/internal/data/db"
	"github.com/primestride/atlas-backend/internal/modules/knowledge/steps"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/envutil"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
	"github.com/primestride/atlas-backend/internal/platform/redis"
)

type Config struct {
	LogMode        string
	Port           string
	GinMode        string
	AllowedOrigins []string
	JWTSecretKey   string

	DB    db.Config
	Redis redis.Config
	// ClusterNameCacheTTL is how long cached cluster names live in Redis.
	ClusterNameCacheTTL time.Duration

	OpenAI openai.Config

	Knowledge           steps.Settings
	EmbedRequestsPerSec float64
	PromptsPath         string

	MetricsEnabled bool
	Otel           observability.OtelConfig
}

// LoadDotEnv loads .env when present. A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadConfig(log *logger.Logger) Config {
	def := steps.DefaultSettings()
	cfg := Config{
		LogMode:        envutil.String("LOG_MODE", "development"),
		Port:           envutil.String("PORT", "8080"),
		GinMode:        envutil.String("GIN_MODE", "release"),
		AllowedOrigins: envutil.List("CORS_ALLOWED_ORIGINS", nil),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),

		DB: db.Config{
			Driver:     envutil.String("DB_DRIVER", db.DriverPostgres),
			Host:       envutil.String("POSTGRES_HOST", "localhost"),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "atlas"),
			SSLMode:    envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath: envutil.String("SQLITE_PATH", "atlas.db"),
		},
		Redis: redis.Config{
			Addr:     envutil.String("REDIS_ADDR", ""),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
		},
		ClusterNameCacheTTL: envutil.Seconds("CLUSTER_NAME_CACHE_TTL_SECONDS", 10*time.Minute),

		OpenAI: openai.Config{
			APIKey:     envutil.String("OPENAI_API_KEY", ""),
			BaseURL:    envutil.String("OPENAI_BASE_URL", ""),
			Model:      envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
			EmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			Timeout:    envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 60*time.Second),
		},

		Knowledge: steps.Settings{
			MaxRunsPerUser: envutil.PositiveInt("REFRESH_MAX_RUNS_PER_USER", def.MaxRunsPerUser),
			MaxDocsPerOrg:  envutil.PositiveInt("REFRESH_MAX_DOCS_PER_ORG", def.MaxDocsPerOrg),
			Window:         def.Window,
			Cooldown:       time.Duration(envutil.Int("EMBEDDING_COOLDOWN_HOURS", int(def.Cooldown/time.Hour))) * time.Hour,
			// EMBEDDING_COOLDOWN_HOURS=0 falls back to the default; this is the explicit off switch.
			DisableCooldown: envutil.Bool("EMBEDDING_COOLDOWN_DISABLED", false),
			Concurrency:     envutil.PositiveInt("EMBED_REFRESH_CONCURRENCY", def.Concurrency),
			MaxEmbedChars:   envutil.PositiveInt("EMBED_MAX_CHARS", def.MaxEmbedChars),
		},
		EmbedRequestsPerSec: envutil.Float("EMBED_REQUESTS_PER_SECOND", 5),
		PromptsPath:         envutil.String("KNOWLEDGE_PROMPTS_YAML", ""),

		MetricsEnabled: envutil.Bool("METRICS_ENABLED", true),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "atlas-backend"),
			Environment: envutil.String("APP_ENV", "development"),
			Version:     envutil.String("APP_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			Headers:     parseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			SampleRatio: envutil.Float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}
	if cfg.Knowledge.Cooldown <= 0 {
		cfg.Knowledge.Cooldown = def.Cooldown
	}
	if log != nil {
		if cfg.JWTSecretKey == "" {
			log.Warn("JWT_SECRET_KEY not set; every API request will be rejected")
		}
		if cfg.OpenAI.APIKey == "" {
			log.Warn("OPENAI_API_KEY not set; embedding and generation are unavailable")
		}
	}
	return cfg
}

// parseHeaders reads "k1=v1,k2=v2".
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
