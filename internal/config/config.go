// Package config loads grimora-push configuration.
//
// Values are resolved in order: built-in defaults, then the YAML file named by
// the --config flag or GRIMORA_PUSH_CONFIG, then GRIMORA_PUSH_* environment
// variables. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfig      = "GRIMORA_PUSH_CONFIG"
	EnvAPIURL      = "GRIMORA_PUSH_API_URL"
	EnvToken       = "GRIMORA_PUSH_TOKEN"
	EnvVAPIDKey    = "GRIMORA_PUSH_VAPID_KEY"
	EnvOrigin      = "GRIMORA_PUSH_ORIGIN"
	EnvStateDir    = "GRIMORA_PUSH_STATE_DIR"
	EnvLogLevel    = "GRIMORA_PUSH_LOG_LEVEL"
	EnvSettingsURL = "GRIMORA_PUSH_SETTINGS_URL"
)

// Config is the grimora-push configuration.
type Config struct {
	// APIURL is the base URL of the subscription API.
	APIURL string `yaml:"api_url"`

	// Token is the bearer token sent to the API. Usually supplied through
	// the environment or the token file instead of the config file.
	Token string `yaml:"token"`

	// SyncPath is the subscription endpoint path on APIURL.
	SyncPath string `yaml:"sync_path"`

	// Origin is the application origin push is registered for.
	// Must be https, or http on a loopback host.
	Origin string `yaml:"origin"`

	// VAPIDPublicKey is the base64url application server key.
	VAPIDPublicKey string `yaml:"vapid_public_key"`

	// ServiceWorker names the background worker script and its scope.
	ServiceWorker ServiceWorkerConfig `yaml:"service_worker"`

	// Activation bounds the wait for the worker to become active.
	Activation ActivationConfig `yaml:"activation"`

	// LocalPlatform configures the file-backed platform used by the CLI.
	LocalPlatform LocalPlatformConfig `yaml:"local_platform"`

	// SettingsURL is opened by "grimora-push settings" so a user who denied
	// permission can find how to change it.
	SettingsURL string `yaml:"settings_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// ServiceWorkerConfig names the worker registration.
type ServiceWorkerConfig struct {
	Script string `yaml:"script"`
	Scope  string `yaml:"scope"`
}

// ActivationConfig controls the activation wait.
type ActivationConfig struct {
	// Timeout is the upper bound on waiting for the worker. Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// PollInterval is how often the worker state is polled. Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LocalPlatformConfig configures the file-backed platform.
type LocalPlatformConfig struct {
	// StateDir holds the platform state file. Default: ~/.grimora-push
	StateDir string `yaml:"state_dir"`

	// PushServiceURL prefixes minted subscription endpoints.
	PushServiceURL string `yaml:"push_service_url"`

	// StepDelay is the time between worker lifecycle stages on first install.
	StepDelay time.Duration `yaml:"step_delay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	stateDir := ".grimora-push"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".grimora-push")
	}
	return &Config{
		APIURL:   "https://api.grimora.ai",
		SyncPath: "/api/push-subscriptions",
		Origin:   "http://localhost",
		ServiceWorker: ServiceWorkerConfig{
			Script: "/sw.js",
			Scope:  "/",
		},
		Activation: ActivationConfig{
			Timeout:      10 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		LocalPlatform: LocalPlatformConfig{
			StateDir:       stateDir,
			PushServiceURL: "https://push.grimora.ai/wpush/v2",
			StepDelay:      150 * time.Millisecond,
		},
		SettingsURL: "https://grimora.ai/faq#notifications",
		LogLevel:    "info",
	}
}

// Load resolves configuration from path (or GRIMORA_PUSH_CONFIG when path is
// empty) and the process environment. A missing path is not an error; a
// named file that cannot be read is.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)
	cfg.LocalPlatform.StateDir = expandHome(cfg.LocalPlatform.StateDir)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.APIURL, EnvAPIURL)
	set(&c.Token, EnvToken)
	set(&c.VAPIDPublicKey, EnvVAPIDKey)
	set(&c.Origin, EnvOrigin)
	set(&c.LocalPlatform.StateDir, EnvStateDir)
	set(&c.LogLevel, EnvLogLevel)
	set(&c.SettingsURL, EnvSettingsURL)
}

// Validate checks that the configuration is usable. The VAPID key is only
// checked for presence; its format is validated when push is initialized.
func (c *Config) Validate() error {
	var errs []error

	if err := validateHTTPURL("api_url", c.APIURL); err != nil {
		errs = append(errs, err)
	}
	if c.Origin == "" {
		errs = append(errs, errors.New("origin is required"))
	} else if u, err := url.Parse(c.Origin); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q is not an absolute URL", c.Origin))
	}
	if strings.TrimSpace(c.VAPIDPublicKey) == "" {
		errs = append(errs, fmt.Errorf("vapid_public_key is required (or set %s)", EnvVAPIDKey))
	}
	if !strings.HasPrefix(c.SyncPath, "/") {
		errs = append(errs, fmt.Errorf("sync_path %q must start with /", c.SyncPath))
	}
	if c.ServiceWorker.Script == "" {
		errs = append(errs, errors.New("service_worker.script is required"))
	}
	if c.Activation.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("activation.timeout must be positive, got %s", c.Activation.Timeout))
	}
	if c.Activation.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("activation.poll_interval must be positive, got %s", c.Activation.PollInterval))
	}
	if c.LocalPlatform.StateDir == "" {
		errs = append(errs, errors.New("local_platform.state_dir is required"))
	}
	if err := validateHTTPURL("local_platform.push_service_url", c.LocalPlatform.PushServiceURL); err != nil {
		errs = append(errs, err)
	}
	if c.LocalPlatform.StepDelay < 0 {
		errs = append(errs, fmt.Errorf("local_platform.step_delay must not be negative, got %s", c.LocalPlatform.StepDelay))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel converts a level name to an slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s %q must be an http(s) URL", field, raw)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
