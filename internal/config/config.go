package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable constant of the pipeline. Values come from an
// optional YAML file, then env vars, then the normalized defaults.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	CorpusPath string `yaml:"corpus_path"`

	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Generator GeneratorConfig `yaml:"generator"`
	Validator ValidatorConfig `yaml:"validator"`
	Adaptive  AdaptiveConfig  `yaml:"adaptive"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	// Disabled runs the pipeline without the persistent event log.
	Disabled bool `yaml:"disabled"`
}

type CacheConfig struct {
	// RedisURL selects the Redis backend when set; empty means in-memory.
	RedisURL   string        `yaml:"redis_url"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxEntries int           `yaml:"max_entries"`

	PoolMaxSize int `yaml:"pool_max_size"`
	// Refill thresholds per observed request-frequency tier.
	HighFreqThreshold   int `yaml:"high_freq_threshold"`
	MediumFreqThreshold int `yaml:"medium_freq_threshold"`
	LowFreqThreshold    int `yaml:"low_freq_threshold"`
	// Request counts that promote a category into a frequency tier.
	HighFreqMinRequests   int `yaml:"high_freq_min_requests"`
	MediumFreqMinRequests int `yaml:"medium_freq_min_requests"`
}

type GeneratorConfig struct {
	Model          string        `yaml:"model"`
	MutationModel  string        `yaml:"mutation_model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxAttempts bounds generate+validate cycles per request.
	MaxAttempts int `yaml:"max_attempts"`
	// ParseRetries bounds malformed-output retries within one attempt.
	ParseRetries int `yaml:"parse_retries"`
	// BatchConcurrency bounds fan-out to respect external rate limits.
	BatchConcurrency int `yaml:"batch_concurrency"`
}

type ValidatorConfig struct {
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	OptionOverlapThreshold float64 `yaml:"option_overlap_threshold"`
	// ReviewThreshold flags low empirical quality; kept configurable
	// because the value is operational, not derived.
	ReviewThreshold float64 `yaml:"review_threshold"`
}

type AdaptiveConfig struct {
	WindowSize       int     `yaml:"window_size"`
	StabilityWindow  int     `yaml:"stability_window"`
	PromoteThreshold float64 `yaml:"promote_threshold"`
	DemoteThreshold  float64 `yaml:"demote_threshold"`
	DecayFactor      float64 `yaml:"decay_factor"`
	TrendBand        float64 `yaml:"trend_band"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		CorpusPath: "data/authentic_items.jsonl",
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "lgs_user",
			Name:    "lgs_platform",
			SSLMode: "disable",
		},
		Cache: CacheConfig{
			DefaultTTL:            time.Hour,
			MaxEntries:            1000,
			PoolMaxSize:           50,
			HighFreqThreshold:     10,
			MediumFreqThreshold:   5,
			LowFreqThreshold:      2,
			HighFreqMinRequests:   100,
			MediumFreqMinRequests: 20,
		},
		Generator: GeneratorConfig{
			Model:            "claude-3-5-haiku-latest",
			MutationModel:    "claude-3-5-haiku-latest",
			RequestTimeout:   60 * time.Second,
			MaxAttempts:      3,
			ParseRetries:     2,
			BatchConcurrency: 4,
		},
		Validator: ValidatorConfig{
			SimilarityThreshold:    0.35,
			OptionOverlapThreshold: 0.7,
			ReviewThreshold:        0.3,
		},
		Adaptive: AdaptiveConfig{
			WindowSize:       10,
			StabilityWindow:  5,
			PromoteThreshold: 0.85,
			DemoteThreshold:  0.40,
			DecayFactor:      0.95,
			TrendBand:        0.1,
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies env overrides,
// and normalizes out-of-range values.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.CorpusPath = getEnv("CORPUS_PATH", cfg.CorpusPath)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	if os.Getenv("DB_DISABLED") == "true" {
		cfg.Database.Disabled = true
	}

	cfg.Cache.RedisURL = getEnv("REDIS_URL", cfg.Cache.RedisURL)
	cfg.Generator.Model = getEnv("ANTHROPIC_MODEL", cfg.Generator.Model)
	cfg.Generator.MutationModel = getEnv("ANTHROPIC_MUTATION_MODEL", cfg.Generator.MutationModel)

	if v := os.Getenv("BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generator.BatchConcurrency = n
		}
	}
}

func normalize(cfg *Config) {
	def := Default()

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Cache.DefaultTTL <= 0 {
		cfg.Cache.DefaultTTL = def.Cache.DefaultTTL
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if cfg.Cache.PoolMaxSize <= 0 {
		cfg.Cache.PoolMaxSize = def.Cache.PoolMaxSize
	}
	if cfg.Cache.HighFreqThreshold <= 0 {
		cfg.Cache.HighFreqThreshold = def.Cache.HighFreqThreshold
	}
	if cfg.Cache.MediumFreqThreshold <= 0 {
		cfg.Cache.MediumFreqThreshold = def.Cache.MediumFreqThreshold
	}
	if cfg.Cache.LowFreqThreshold <= 0 {
		cfg.Cache.LowFreqThreshold = def.Cache.LowFreqThreshold
	}
	if cfg.Generator.RequestTimeout <= 0 {
		cfg.Generator.RequestTimeout = def.Generator.RequestTimeout
	}
	if cfg.Generator.MaxAttempts <= 0 {
		cfg.Generator.MaxAttempts = def.Generator.MaxAttempts
	}
	if cfg.Generator.ParseRetries < 0 {
		cfg.Generator.ParseRetries = def.Generator.ParseRetries
	}
	if cfg.Generator.BatchConcurrency <= 0 {
		cfg.Generator.BatchConcurrency = def.Generator.BatchConcurrency
	}
	if cfg.Validator.SimilarityThreshold <= 0 || cfg.Validator.SimilarityThreshold > 1 {
		cfg.Validator.SimilarityThreshold = def.Validator.SimilarityThreshold
	}
	if cfg.Validator.OptionOverlapThreshold <= 0 || cfg.Validator.OptionOverlapThreshold > 1 {
		cfg.Validator.OptionOverlapThreshold = def.Validator.OptionOverlapThreshold
	}
	if cfg.Validator.ReviewThreshold <= 0 || cfg.Validator.ReviewThreshold > 1 {
		cfg.Validator.ReviewThreshold = def.Validator.ReviewThreshold
	}
	if cfg.Adaptive.WindowSize <= 0 {
		cfg.Adaptive.WindowSize = def.Adaptive.WindowSize
	}
	if cfg.Adaptive.StabilityWindow <= 0 || cfg.Adaptive.StabilityWindow > cfg.Adaptive.WindowSize {
		cfg.Adaptive.StabilityWindow = def.Adaptive.StabilityWindow
	}
	if cfg.Adaptive.PromoteThreshold <= 0 || cfg.Adaptive.PromoteThreshold > 1 {
		cfg.Adaptive.PromoteThreshold = def.Adaptive.PromoteThreshold
	}
	if cfg.Adaptive.DemoteThreshold <= 0 || cfg.Adaptive.DemoteThreshold >= cfg.Adaptive.PromoteThreshold {
		cfg.Adaptive.DemoteThreshold = def.Adaptive.DemoteThreshold
	}
	if cfg.Adaptive.DecayFactor <= 0 || cfg.Adaptive.DecayFactor >= 1 {
		cfg.Adaptive.DecayFactor = def.Adaptive.DecayFactor
	}
	if cfg.Adaptive.TrendBand <= 0 {
		cfg.Adaptive.TrendBand = def.Adaptive.TrendBand
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = def.Database.Host
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = def.Database.Port
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = def.Database.SSLMode
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
