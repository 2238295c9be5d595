package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. Values load in order:
// defaults, TOML file(s), environment variables, CLI overrides.
type Config struct {
	Environment string           `toml:"environment" validate:"oneof=development production test"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	LLM         LLMConfig        `toml:"llm"`
	Extractors  ExtractorConfig  `toml:"extractors"`
	Import      ImportConfig     `toml:"import"`
	Enrichment  EnrichmentConfig `toml:"enrichment"`
	RateLimit   RateLimitConfig  `toml:"rate_limit"`
	CORS        CORSConfig       `toml:"cors"`
	MasterKey   string           `toml:"-"` // DECANT_MASTER_KEY, never persisted
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lt=65536"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	DatabasePath  string `toml:"database_path"` // SQLite file
	QueuePath     string `toml:"queue_path"`    // Badger directory for the enrichment queue
	CacheSizeMB   int    `toml:"cache_size_mb"`
	WALMode       bool   `toml:"wal_mode"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMConfig selects and configures the classification provider.
type LLMConfig struct {
	DefaultProvider string       `toml:"default_provider" validate:"oneof=gemini claude"`
	Gemini          GeminiConfig `toml:"gemini"`
	Claude          ClaudeConfig `toml:"claude"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// ExtractorConfig holds per-extractor API credentials. All optional; an
// extractor without credentials falls back to minimal metadata.
type ExtractorConfig struct {
	YouTubeAPIKey      string        `toml:"youtube_api_key"`
	GitHubToken        string        `toml:"github_token"`
	TwitterBearerToken string        `toml:"twitter_bearer_token"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	TwitterTimeout     time.Duration `toml:"twitter_timeout"`
	BatchConcurrency   int           `toml:"batch_concurrency"`
}

type ImportConfig struct {
	CacheTTL       time.Duration `toml:"cache_ttl"`
	MaxContentSize int           `toml:"max_content_size"` // characters fed to the classifier
}

type EnrichmentConfig struct {
	Enabled           bool   `toml:"enabled"`
	Schedule          string `toml:"schedule"`           // cron spec for queue draining
	RecomputeEnabled  bool   `toml:"recompute_enabled"`  // nightly full similarity recompute
	RecomputeSchedule string `toml:"recompute_schedule"` // cron spec
}

type RateLimitConfig struct {
	GlobalPerMinute   int `toml:"global_per_minute"`
	ImportPerMinute   int `toml:"import_per_minute"`
	SettingsPerMinute int `toml:"settings_per_minute"`
}

type CORSConfig struct {
	// AllowedOrigins supports exact origins and "prefix*" wildcards.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".decant", "data")

	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8263,
			Host: "localhost",
		},
		Storage: StorageConfig{
			DatabasePath:  filepath.Join(dataDir, "decant.db"),
			QueuePath:     filepath.Join(dataDir, "queue"),
			CacheSizeMB:   64,
			WALMode:       true,
			BusyTimeoutMS: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			Gemini: GeminiConfig{
				Model:       "gemini-2.0-flash",
				Temperature: 0.3,
				MaxTokens:   2000,
			},
			Claude: ClaudeConfig{
				Model:       "claude-sonnet-4-20250514",
				Temperature: 0.3,
				MaxTokens:   2000,
			},
		},
		Extractors: ExtractorConfig{
			RequestTimeout:   15 * time.Second,
			TwitterTimeout:   30 * time.Second,
			BatchConcurrency: 5,
		},
		Import: ImportConfig{
			CacheTTL:       5 * time.Minute,
			MaxContentSize: 4000,
		},
		Enrichment: EnrichmentConfig{
			Enabled:           true,
			Schedule:          "@every 30s",
			RecomputeEnabled:  false,
			RecomputeSchedule: "0 3 * * *",
		},
		RateLimit: RateLimitConfig{
			GlobalPerMinute:   100,
			ImportPerMinute:   10,
			SettingsPerMinute: 5,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:*"},
		},
	}
}

// LoadConfig loads configuration from the given TOML files (later files
// override earlier ones), then applies environment overrides and validates.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides maps environment variables onto the config. Environment
// always wins over file values.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		switch v {
		case "dev", "development":
			c.Environment = "development"
		case "prod", "production":
			c.Environment = "production"
		case "test":
			c.Environment = "test"
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
		c.Storage.QueuePath = filepath.Join(filepath.Dir(v), "queue")
	}
	if v := os.Getenv("DECANT_MASTER_KEY"); v != "" {
		c.MasterKey = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.CORS.AllowedOrigins = origins
	}

	// LLM providers. OPENAI_* are accepted as generic aliases for the
	// default provider's credentials so existing deployments keep working.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		switch c.LLM.DefaultProvider {
		case "claude":
			if c.LLM.Claude.APIKey == "" {
				c.LLM.Claude.APIKey = v
			}
		default:
			if c.LLM.Gemini.APIKey == "" {
				c.LLM.Gemini.APIKey = v
			}
		}
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		switch c.LLM.DefaultProvider {
		case "claude":
			c.LLM.Claude.Model = v
		default:
			c.LLM.Gemini.Model = v
		}
	}

	// Extractor credentials.
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		c.Extractors.YouTubeAPIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.Extractors.GitHubToken = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		c.Extractors.TwitterBearerToken = v
	}

	// Rate limit knobs.
	if v := os.Getenv("RATE_LIMIT_GLOBAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.GlobalPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_IMPORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.ImportPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_SETTINGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.SettingsPerMinute = n
		}
	}
}

// IsProduction reports whether the server runs with production hardening
// (redacted internal error messages).
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
