package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration. Fields tagged `env`
// can be overridden from the environment.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Case        CaseConfig        `yaml:"case"`
	Payloads    PayloadsConfig    `yaml:"payloads"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
	Verify      VerifyConfig      `yaml:"verify"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Analyst     AnalystConfig     `yaml:"analyst"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Case, &c.Payloads, &c.SQLite, &c.Auth, &c.Verify, &c.Correlation, &c.Analyst,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level" env:"CASEFILE_LOG_LEVEL"`
	LogFormat string     `yaml:"log_format" env:"CASEFILE_LOG_FORMAT"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatJSON, LogFormatText)),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `yaml:"port" env:"CASEFILE_HTTP_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// CaseConfig points at the case file: Markdown with YAML frontmatter
// holding the evidence catalog, objectives and report schema.
type CaseConfig struct {
	Path string `yaml:"path" env:"CASEFILE_CASE_PATH"`
}

// Validate validates the case configuration.
func (c *CaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PayloadsConfig holds the directory of raw evidence payloads.
type PayloadsConfig struct {
	Path     string        `yaml:"path" env:"CASEFILE_PAYLOADS_PATH"`
	Watch    bool          `yaml:"watch" env:"CASEFILE_PAYLOADS_WATCH"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the payloads configuration.
func (c *PayloadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds the audit mirror database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"CASEFILE_SQLITE_PATH"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for a single workstation.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"CASEFILE_AUTH_MODE"`
	Token string `yaml:"token" env:"CASEFILE_AUTH_TOKEN"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// VerifyConfig bounds integrity verification.
type VerifyConfig struct {
	Timeout     time.Duration `yaml:"timeout" env:"CASEFILE_VERIFY_TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"CASEFILE_VERIFY_CONCURRENCY"`
	OnStartup   bool          `yaml:"on_startup" env:"CASEFILE_VERIFY_ON_STARTUP"`
}

// Validate validates the verification configuration.
func (c *VerifyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// CorrelationConfig tunes the correlation engine.
type CorrelationConfig struct {
	Threshold       time.Duration `yaml:"threshold"`
	SameSourceBonus float64       `yaml:"same_source_bonus"`
	CriticalBonus   float64       `yaml:"critical_bonus"`
	ProcessStrength float64       `yaml:"process_strength"`
}

// Validate validates the correlation configuration.
func (c *CorrelationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Threshold, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SameSourceBonus, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.CriticalBonus, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.ProcessStrength, validation.Min(0.0), validation.Max(1.0)),
	)
}

// AnalystConfig is the default attribution for custody entries when a
// request carries none.
type AnalystConfig struct {
	User     string `yaml:"user" env:"CASEFILE_ANALYST"`
	Location string `yaml:"location" env:"CASEFILE_ANALYST_LOCATION"`
}

// Validate validates the analyst configuration.
func (c *AnalystConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.User, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Case: CaseConfig{
			Path: "./case/case.md",
		},
		Payloads: PayloadsConfig{
			Path:     "./case/payloads",
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		SQLite: SQLiteConfig{
			Path: "./casefile.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Verify: VerifyConfig{
			Timeout:     5 * time.Second,
			Concurrency: 4,
			OnStartup:   true,
		},
		Correlation: CorrelationConfig{
			Threshold:       time.Hour,
			SameSourceBonus: 0.2,
			CriticalBonus:   0.3,
			ProcessStrength: 0.8,
		},
		Analyst: AnalystConfig{
			User:     "investigator",
			Location: "forensics-lab",
		},
	}
}
