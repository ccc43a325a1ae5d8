// Package config layers pipeline settings from defaults, an optional
// YAML file, and SKILLGRAPH_-prefixed environment variables.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Provider settings.
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	EmbedModel  string        `koanf:"embed_model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	EmbedRPS    float64       `koanf:"embed_rps"`

	// Extraction settings.
	BatchSize   int    `koanf:"batch_size"`
	MaxInFlight int    `koanf:"max_in_flight"`
	CacheDir    string `koanf:"cache_dir"`
	Checkpoint  string `koanf:"checkpoint"`

	// Clustering settings.
	ClusterEps    float64 `koanf:"cluster_eps"`
	ClusterMinPts int     `koanf:"cluster_min_pts"`

	// Storage. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `koanf:"database_url"`
	RedisAddr   string `koanf:"redis_addr"`
}

// New returns the defaults layer.
func New() *Config {
	return &Config{
		BaseURL:       "https://api.openai.com/v1",
		Model:         "gpt-4o-mini",
		EmbedModel:    "text-embedding-3-small",
		Temperature:   0.1,
		Timeout:       60 * time.Second,
		EmbedRPS:      5,
		BatchSize:     10,
		MaxInFlight:   3,
		CacheDir:      ".skillgraph",
		ClusterEps:    0.25,
		ClusterMinPts: 2,
	}
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SKILLGRAPH_CONFIG is set
//  3. env (prefix SKILLGRAPH_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SKILLGRAPH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// SKILLGRAPH_BATCH_SIZE -> batch_size, matching the koanf tags.
	envProvider := env.Provider("SKILLGRAPH_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "skillgraph_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch_size must be positive")
	}
	if cfg.MaxInFlight <= 0 {
		return nil, errors.New("max_in_flight must be positive")
	}
	return &cfg, nil
}
