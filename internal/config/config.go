package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes for the Gradescope login flow.
const (
	AuthModeSSO      = "sso"
	AuthModePassword = "password"
)

// DefaultFingerprintFields is the identity composition used when the config
// does not override it. The exact composition is deliberately configurable;
// changing it invalidates existing dedup-store fingerprints.
var DefaultFingerprintFields = []string{"source", "course", "title", "due"}

// Duration wraps time.Duration so reminder offsets and windows can be written
// as strings ("30m", "24h") in YAML or JSON.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON parses a Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML serializes the duration back to its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON serializes the duration back to its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the full sync configuration. The file is written by the external
// setup wizard; this package only reads and validates it.
type Config struct {
	GradescopeAuthMode string `yaml:"gradescope_auth_mode" json:"gradescope_auth_mode"`
	GradescopeEmail    string `yaml:"gradescope_email" json:"gradescope_email"`
	GradescopePassword string `yaml:"gradescope_password" json:"gradescope_password"`

	CanvasBaseURL string `yaml:"canvas_base_url" json:"canvas_base_url"`
	// CanvasToken empty means "skip the API source", not an error.
	CanvasToken string `yaml:"canvas_token" json:"canvas_token"`

	Timezone        string     `yaml:"timezone" json:"timezone"`
	ReminderOffsets []Duration `yaml:"reminder_offsets" json:"reminder_offsets"`

	OutputPath  string `yaml:"output_path" json:"output_path"`
	StatePath   string `yaml:"state_path" json:"state_path"`
	SessionPath string `yaml:"session_path" json:"session_path"`
	LockPath    string `yaml:"lock_path" json:"lock_path"`

	GraceWindow Duration `yaml:"grace_window" json:"grace_window"`
	SSOTimeout  Duration `yaml:"sso_timeout" json:"sso_timeout"`

	// FingerprintFields selects which canonical attributes feed the identity
	// hash. Valid entries: source, course, title, due.
	FingerprintFields []string `yaml:"fingerprint_fields" json:"fingerprint_fields"`

	Debug bool `yaml:"debug" json:"debug"`
}

// Defaults for everything the wizard is allowed to omit.
const (
	DefaultOutputPath  = "duesync.ics"
	DefaultStatePath   = ".duesync/dedup.db"
	DefaultSessionPath = ".duesync/session.json"
	DefaultLockPath    = ".duesync/duesync.lock"
)

func (c *Config) applyDefaults() {
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.SessionPath == "" {
		c.SessionPath = DefaultSessionPath
	}
	if c.LockPath == "" {
		c.LockPath = DefaultLockPath
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if len(c.ReminderOffsets) == 0 {
		c.ReminderOffsets = []Duration{Duration(24 * time.Hour), Duration(time.Hour)}
	}
	if c.GraceWindow == 0 {
		c.GraceWindow = Duration(14 * 24 * time.Hour)
	}
	if c.SSOTimeout == 0 {
		c.SSOTimeout = Duration(3 * time.Minute)
	}
	if len(c.FingerprintFields) == 0 {
		c.FingerprintFields = append([]string(nil), DefaultFingerprintFields...)
	}
}

// ScrapeConfigured reports whether the Gradescope source should run.
func (c *Config) ScrapeConfigured() bool {
	return c.GradescopeAuthMode != ""
}

// APIConfigured reports whether the Canvas source should run.
func (c *Config) APIConfigured() bool {
	return c.CanvasToken != ""
}

// Location resolves the configured IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Offsets returns the reminder offsets as plain durations.
func (c *Config) Offsets() []time.Duration {
	out := make([]time.Duration, len(c.ReminderOffsets))
	for i, d := range c.ReminderOffsets {
		out[i] = d.Std()
	}
	return out
}

// Validate checks the parsed config for contradictions. Called by Load; kept
// exported so tests and the wizard can reuse it.
func (c *Config) Validate() error {
	if !c.ScrapeConfigured() && !c.APIConfigured() {
		return fmt.Errorf("config: no source configured (need gradescope_auth_mode or canvas_token)")
	}
	switch c.GradescopeAuthMode {
	case "", AuthModeSSO:
	case AuthModePassword:
		if c.GradescopeEmail == "" || c.GradescopePassword == "" {
			return fmt.Errorf("config: password auth mode requires gradescope_email and gradescope_password")
		}
	default:
		return fmt.Errorf("config: unknown gradescope_auth_mode %q (want %q or %q)",
			c.GradescopeAuthMode, AuthModeSSO, AuthModePassword)
	}
	if c.APIConfigured() && c.CanvasBaseURL == "" {
		return fmt.Errorf("config: canvas_token set but canvas_base_url missing")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, d := range c.ReminderOffsets {
		if d <= 0 {
			return fmt.Errorf("config: reminder offsets must be positive, got %s", d.Std())
		}
	}
	for _, f := range c.FingerprintFields {
		switch f {
		case "source", "course", "title", "due":
		default:
			return fmt.Errorf("config: unknown fingerprint field %q", f)
		}
	}
	return nil
}

// Load parses a config from bytes. ext is the file extension (".yaml", ".json")
// as a format hint; empty = detect from content.
func Load(data []byte, ext string) (*Config, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}

	var c Config
	switch {
	case ext == ".json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	case ext == ".yaml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	case strings.HasPrefix(strings.TrimSpace(string(data)), "{"):
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
