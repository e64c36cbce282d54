// Package config loads and validates engine configuration. Settings
// come from an optional YAML file overlaid with environment variables;
// the service account token is env-only and never written to disk.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Env variable names recognized by Load.
const (
	EnvGrafanaURL   = "GRAFANA_URL"
	EnvServiceToken = "GRAFANA_SERVICE_ACCOUNT_TOKEN"
	EnvLegacyToken  = "GRAFANA_TOKEN"
	EnvChatWebhook  = "GOOGLE_CHAT_WEBHOOK_URL"
	EnvCacheDir     = "SITREP_CACHE_DIR"

	// EnvConfigFile points at a config file for binaries that take no
	// flags, like the MCP server.
	EnvConfigFile = "SITREP_CONFIG"
)

// DefaultFile is the config file Load looks for when no path is given.
const DefaultFile = "sitrep.yaml"

// Config is the engine configuration. YAML field names are what
// sitrep.yaml uses; the generated JSON schema validates the same names.
type Config struct {
	GrafanaURL string `yaml:"grafana_url" json:"grafana_url,omitempty" jsonschema:"title=Grafana instance URL,example=https://myorg.grafana.net"`
	WebhookURL string `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty" jsonschema:"title=Google Chat webhook URL"`
	CacheDir   string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty" jsonschema:"title=Disk cache directory"`

	// SLADays maps a severity to its resolution target in days.
	SLADays map[string]int `yaml:"sla_days,omitempty" json:"sla_days,omitempty" jsonschema:"title=SLA days per severity"`

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds,omitempty" json:"http_timeout_seconds,omitempty" jsonschema:"minimum=1"`
	MaxAttempts        int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty" jsonschema:"minimum=1,maximum=10"`
	FetchConcurrency   int `yaml:"fetch_concurrency,omitempty" json:"fetch_concurrency,omitempty" jsonschema:"minimum=1,maximum=16"`

	// Token is the service account credential. Environment only: it has
	// no YAML tag on purpose so a config file can never carry it.
	Token string `yaml:"-" json:"-"`
}

// Defaults returns the built-in configuration before any file or env
// overlay.
func Defaults() *Config {
	return &Config{
		CacheDir: defaultCacheDir(),
		SLADays: map[string]int{
			"Critical": 1,
			"Major":    2,
			"Minor":    3,
		},
		HTTPTimeoutSeconds: 30,
		MaxAttempts:        3,
		FetchConcurrency:   4,
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".cache", "sitrep")
	}
	return filepath.Join(base, "sitrep")
}

// Load builds the effective configuration: defaults, then the YAML file
// (explicit path, or DefaultFile if present), then environment
// variables. A missing explicit path is an error; a missing DefaultFile
// is not.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No config file is fine; env and flags carry everything.
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// decode parses YAML over the receiver with unknown-field rejection, so
// a typo in sitrep.yaml fails loudly instead of being ignored.
func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays environment variables. Env wins over file values,
// matching how the tool runs in CI.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGrafanaURL); v != "" {
		c.GrafanaURL = v
	}
	if v := os.Getenv(EnvServiceToken); v != "" {
		c.Token = v
	} else if v := os.Getenv(EnvLegacyToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvChatWebhook); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
}

// RequireCredentials reports whether the config can talk to the
// incident API. Commands that only touch the local cache skip this.
func (c *Config) RequireCredentials() error {
	if c.GrafanaURL == "" {
		return fmt.Errorf("no Grafana URL configured (set %s or grafana_url in %s)", EnvGrafanaURL, DefaultFile)
	}
	if c.Token == "" {
		return fmt.Errorf("no service account token configured (set %s)", EnvServiceToken)
	}
	return nil
}

// Check runs the domain rules on a loaded config and returns the first
// hard failure. Load stays permissive so ValidateFile can report every
// finding at once; commands call Check before acting on the config.
func (c *Config) Check() error {
	for _, e := range c.domainErrors() {
		if e.Severity == "error" {
			return e
		}
	}
	return nil
}

// domainErrors applies the validation rules the JSON schema cannot
// express.
func (c *Config) domainErrors() []*ValidationError {
	var errs []*ValidationError

	if c.GrafanaURL != "" {
		if u, err := url.Parse(c.GrafanaURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "grafana_url",
				Message:  fmt.Sprintf("%q is not an http(s) URL", c.GrafanaURL),
				Severity: "error",
			})
		}
	}
	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil || u.Host == "" || u.Scheme != "https" {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "webhook_url",
				Message:  fmt.Sprintf("%q is not an https URL", c.WebhookURL),
				Severity: "error",
			})
		}
	}
	for severity, days := range c.SLADays {
		if days <= 0 {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("sla_days.%s", severity),
				Message:  fmt.Sprintf("SLA for %q must be at least one day, got %d", severity, days),
				Severity: "error",
			})
		}
	}
	if c.FetchConcurrency < 1 || c.FetchConcurrency > 16 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "fetch_concurrency",
			Message:  fmt.Sprintf("fetch_concurrency %d outside 1..16", c.FetchConcurrency),
			Severity: "error",
		})
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "max_attempts",
			Message:  "max_attempts must be at least 1",
			Severity: "error",
		})
	}
	if c.HTTPTimeoutSeconds < 1 {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     "http_timeout_seconds",
			Message:  "http_timeout_seconds must be at least 1",
			Severity: "error",
		})
	}
	return errs
}
