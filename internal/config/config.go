package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr             = ":8080"
	DefaultLogLevel         = "info"
	DefaultAgeEndpoint      = "https://api-inference.huggingface.co/models/nateraw/vit-age-classifier"
	DefaultDetectorEndpoint = "https://api-inference.huggingface.co/models/umm-maybe/AI-image-detector"
	DefaultMaxUploadBytes   = 10 << 20

	// TokenEnv holds the Hugging Face API token.
	TokenEnv = "HUGGINGFACE_API_KEY"
)

// Config holds runtime parameters. It is loaded once in main and treated as
// read-only afterwards.
type Config struct {
	Addr             string   `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel         string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	Token            string   `json:"token" yaml:"token" toml:"token"`
	AgeEndpoint      string   `json:"age_endpoint" yaml:"age_endpoint" toml:"age_endpoint"`
	DetectorEndpoint string   `json:"detector_endpoint" yaml:"detector_endpoint" toml:"detector_endpoint"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	MaxUploadBytes   int64    `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	MaxDimension     uint     `json:"max_dimension" yaml:"max_dimension" toml:"max_dimension"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which yaml, toml and
// json all honour for string values.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:             DefaultAddr,
		LogLevel:         DefaultLogLevel,
		AgeEndpoint:      DefaultAgeEndpoint,
		DetectorEndpoint: DefaultDetectorEndpoint,
		MaxUploadBytes:   DefaultMaxUploadBytes,
	}
}

// Load builds the configuration from defaults, an optional file and the
// environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// loadFile decodes a configuration file by extension: .yaml/.yml, .json, .toml.
func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json":
		err = json.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) string) error {
	getEnv := func(key, fallback string) string {
		if value := strings.TrimSpace(lookup(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg.Token = getEnv(TokenEnv, cfg.Token)
	cfg.Addr = getEnv("AI_TOOLS_ADDR", cfg.Addr)
	cfg.LogLevel = getEnv("AI_TOOLS_LOG_LEVEL", cfg.LogLevel)
	cfg.AgeEndpoint = getEnv("AI_TOOLS_AGE_URL", cfg.AgeEndpoint)
	cfg.DetectorEndpoint = getEnv("AI_TOOLS_DETECTOR_URL", cfg.DetectorEndpoint)

	if v := getEnv("AI_TOOLS_REQUEST_TIMEOUT", ""); v != "" {
		if err := cfg.RequestTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("AI_TOOLS_REQUEST_TIMEOUT: %w", err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
}

// Timeout returns RequestTimeout as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout)
}
