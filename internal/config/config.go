// Package config holds the service configuration, loaded from an optional
// YAML file with TEXCONV_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/darven/go-texconv/internal/yamlutil"
)

// Sentinel errors for config loading.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalidValue   = errors.New("invalid config value")
)

// Defaults.
const (
	DefaultListen         = ":8080"
	DefaultRenderTimeout  = 2 * time.Minute
	DefaultMaxUploadBytes = 25 << 20
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`

	// AssetDir is the shared AssetSet directory injected into every
	// workspace. Empty disables injection.
	AssetDir string `yaml:"assetDir"`

	// WorkspaceDir is where per-request workspaces are created. Empty
	// means the system temp directory.
	WorkspaceDir string `yaml:"workspaceDir"`

	// RenderTimeout bounds one renderer invocation. Zero disables it.
	RenderTimeout time.Duration `yaml:"renderTimeout"`

	// MaxUploadBytes caps the upload body size.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         DefaultListen,
		RenderTimeout:  DefaultRenderTimeout,
		MaxUploadBytes: DefaultMaxUploadBytes,
		LogLevel:       "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

// Environment variable names. Overrides are CI/CD-friendly and do not
// require a YAML file.
const (
	envListen         = "TEXCONV_LISTEN"
	envAssetDir       = "TEXCONV_ASSET_DIR"
	envWorkspaceDir   = "TEXCONV_WORKSPACE_DIR"
	envRenderTimeout  = "TEXCONV_RENDER_TIMEOUT"
	envMaxUploadBytes = "TEXCONV_MAX_UPLOAD_BYTES"
	envLogLevel       = "TEXCONV_LOG_LEVEL"
)

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(envAssetDir); v != "" {
		cfg.AssetDir = v
	}
	if v := os.Getenv(envWorkspaceDir); v != "" {
		cfg.WorkspaceDir = v
	}
	if v := os.Getenv(envRenderTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, envRenderTimeout, v, err)
		}
		cfg.RenderTimeout = d
	}
	if v := os.Getenv(envMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, envMaxUploadBytes, v, err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidValue)
	}
	if c.RenderTimeout < 0 {
		return fmt.Errorf("%w: renderTimeout is negative", ErrInvalidValue)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: maxUploadBytes must be positive", ErrInvalidValue)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidValue, c.LogLevel)
	}
	return nil
}
