package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AniListURL   string
	AniListToken string
	// AniListUser is the operator's own list, used by push, delete and replace.
	AniListUser string

	CatalogPath string
	DatabaseURL string
	NATSURL     string

	RateLimitCount    int
	RateLimitWindow   time.Duration
	RateLimitCooldown time.Duration
	RateLimitMargin   time.Duration
	MaxAttempts       int
	HTTPTimeout       time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		AniListURL:   envOr("ANILIST_URL", "https://graphql.anilist.co"),
		AniListToken: strings.TrimSpace(os.Getenv("ANILIST_TOKEN")),
		AniListUser:  strings.TrimSpace(os.Getenv("ANILIST_USER")),
		CatalogPath:  envOr("CATALOG_PATH", "catalog.json"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:      strings.TrimSpace(os.Getenv("NATS_URL")),

		RateLimitCount:    envInt("RATE_LIMIT_COUNT", 0),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitCooldown: envDuration("RATE_LIMIT_COOLDOWN", time.Minute),
		RateLimitMargin:   envDuration("RATE_LIMIT_MARGIN", time.Second),
		MaxAttempts:       envInt("MAX_ATTEMPTS", 10),
		HTTPTimeout:       envDuration("HTTP_TIMEOUT", 30*time.Second),
	}
	if !strings.HasPrefix(cfg.AniListURL, "http://") && !strings.HasPrefix(cfg.AniListURL, "https://") {
		return Config{}, fmt.Errorf("ANILIST_URL must be an http(s) url, got %q", cfg.AniListURL)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RateLimitCount < 0 {
		cfg.RateLimitCount = 0
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("90s", "1m") or plain seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
