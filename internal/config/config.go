package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	LogLevel            string
	SessionSecret       string
	DatabaseURL         string // empty runs the feeds on the in-memory store
	RedisURL            string
	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	GeminiAPIKey        string
	GeminiModel         string
	ListingsCollection  string
	ReadOnlyCollections []string
	SubmitMaxAttempts   int
	SubmitRetryDelay    time.Duration
	PendingTTL          time.Duration
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("LISTINGS_COLLECTION", "produce")
	v.SetDefault("SUBMIT_MAX_ATTEMPTS", 3)
	v.SetDefault("SUBMIT_RETRY_DELAY", "1s")
	v.SetDefault("PENDING_TTL", "10m")

	cfg := &Config{
		Env:                 strings.ToLower(v.GetString("APP_ENV")),
		Port:                v.GetString("PORT"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		SessionSecret:       v.GetString("SESSION_SECRET"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   v.GetBool("ALLOW_CROSS_SITE_DEV"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		GeminiAPIKey:        v.GetString("GEMINI_API_KEY"),
		GeminiModel:         v.GetString("GEMINI_MODEL"),
		ListingsCollection:  v.GetString("LISTINGS_COLLECTION"),
		ReadOnlyCollections: splitList(v.GetString("DOCSTORE_READONLY")),
		SubmitMaxAttempts:   v.GetInt("SUBMIT_MAX_ATTEMPTS"),
		SubmitRetryDelay:    v.GetDuration("SUBMIT_RETRY_DELAY"),
		PendingTTL:          v.GetDuration("PENDING_TTL"),
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required for sessions and feed notifications")
	}
	if cfg.SubmitMaxAttempts < 1 {
		return nil, errors.New("SUBMIT_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
