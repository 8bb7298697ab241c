// Package config loads service settings from adqueue.yml, a .env file and
// ADQUEUE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/dusk-indust/adqueue/internal/logging"
)

// EnvPrefix marks environment variables that override file settings.
// ADQUEUE_REASONING_RATE_PER_MINUTE sets reasoning.rate_per_minute.
const EnvPrefix = "ADQUEUE_"

// APIKeyEnv is read when reasoning.api_key is not set.
const APIKeyEnv = "GEMINI_API_KEY"

// FileNames are the config file names searched, in order.
var FileNames = []string{"adqueue.yml", "adqueue.yaml"}

// Config holds every setting of the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       logging.Config  `koanf:"log"`
	Reasoning ReasoningConfig `koanf:"reasoning"`
	Build     BuildConfig     `koanf:"build"`
	Archive   ArchiveConfig   `koanf:"archive"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// ReasoningConfig configures the external reasoning and image services.
type ReasoningConfig struct {
	APIKey        string        `koanf:"api_key"`
	Model         string        `koanf:"model" validate:"required"`
	ImageModel    string        `koanf:"image_model" validate:"required"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	RatePerMinute int           `koanf:"rate_per_minute" validate:"gte=0"`
	Variations    int           `koanf:"variations" validate:"gte=1,lte=4"`
}

// BuildConfig configures the build merge.
type BuildConfig struct {
	MergeTimeout time.Duration `koanf:"merge_timeout" validate:"gt=0"`
	// DefaultsDir holds mechanics.json, levels.json and visual.json
	// overriding the built-in default configuration. Optional.
	DefaultsDir string `koanf:"defaults_dir"`
}

// ArchiveConfig selects where build records are kept.
type ArchiveConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory sqlite"`
	Path   string `koanf:"path" validate:"required_if=Driver sqlite"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8787",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Reasoning: ReasoningConfig{
			Model:         "gemini-2.5-flash",
			ImageModel:    "gemini-2.5-flash-image",
			Timeout:       90 * time.Second,
			RatePerMinute: 30,
			Variations:    2,
		},
		Build: BuildConfig{
			MergeTimeout: 120 * time.Second,
		},
		Archive: ArchiveConfig{
			Driver: "sqlite",
			Path:   "adqueue.db",
		},
	}
}

// Load reads adqueue.yml or adqueue.yaml and .env from dir, applies
// ADQUEUE_* environment overrides on top of Default and validates the
// result. A missing config file is not an error.
func Load(dir string) (*Config, error) {
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Reasoning.APIKey == "" {
		cfg.Reasoning.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.Archive.Path != "" && !filepath.IsAbs(cfg.Archive.Path) {
		cfg.Archive.Path = filepath.Join(dir, cfg.Archive.Path)
	}
	if cfg.Build.DefaultsDir != "" && !filepath.IsAbs(cfg.Build.DefaultsDir) {
		cfg.Build.DefaultsDir = filepath.Join(dir, cfg.Build.DefaultsDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ADQUEUE_SECTION_FIELD_NAME to section.field_name. Only the
// first underscore after the prefix separates the section.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// loadDotEnv loads dir/.env and dir/.env.local when present. Variables
// already set in the environment win.
func loadDotEnv(dir string) error {
	var existing []string
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid settings: %s", strings.Join(msgs, "; "))
}

// HasAPIKey reports whether the reasoning service can be reached.
func (c *Config) HasAPIKey() bool {
	return c.Reasoning.APIKey != ""
}
