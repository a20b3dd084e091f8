package configs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr      string
	RefreshInterval time.Duration
	ProbeTimeout    time.Duration
	ProbeTarget     string
	ProbeUserAgent  string
	GroupSize       int
	Concurrency     int
	ProbeRate       float64
	MaxPoolSize     int
	SourceTimeout   time.Duration
	SourcesFile     string
	DatabaseURL     string
	GeoIPPath       string
	LogLevel        slog.Level
}

func Default() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:10002",
		RefreshInterval: 300 * time.Second,
		ProbeTimeout:    5 * time.Second,
		ProbeTarget:     "http://baidu.com",
		GroupSize:       100,
		Concurrency:     256,
		MaxPoolSize:     100000,
		SourceTimeout:   60 * time.Second,
		GeoIPPath:       "data/GeoLite2-City.mmdb",
		LogLevel:        slog.LevelInfo,
	}
}

func Load() (*Config, error) {
	// Try loading .env, but don't fail if it doesn't exist (e.g. production)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup, starting from Default.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v := getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}
	positive := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be a positive integer, got %q", key, v))
			return
		}
		*dst = n
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	dur("REFRESH_INTERVAL", &cfg.RefreshInterval)
	dur("PROBE_TIMEOUT", &cfg.ProbeTimeout)
	str("PROBE_TARGET", &cfg.ProbeTarget)
	str("PROBE_USER_AGENT", &cfg.ProbeUserAgent)
	positive("GROUP_SIZE", &cfg.GroupSize)
	positive("CONCURRENCY", &cfg.Concurrency)
	positive("MAX_POOL_SIZE", &cfg.MaxPoolSize)
	dur("SOURCE_TIMEOUT", &cfg.SourceTimeout)
	str("SOURCES_FILE", &cfg.SourcesFile)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("GEOIP_DB", &cfg.GeoIPPath)

	if v := getenv("PROBE_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			errs = append(errs, fmt.Errorf("PROBE_RATE: must be a non-negative number, got %q", v))
		} else {
			cfg.ProbeRate = r
		}
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}
