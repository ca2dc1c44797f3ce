// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/leadscout/leadscout/internal/lead"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Session    SessionConfig    `mapstructure:"session"`
	Sources    []SourceConfig   `mapstructure:"sources"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Settings   SettingsConfig   `mapstructure:"settings"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication tokens.
type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`
	AdminToken string `mapstructure:"admin_token"`
}

// SessionConfig governs the browser session used for scanning.
type SessionConfig struct {
	LoginIdentity     string `mapstructure:"login_identity"`
	LoginSecret       string `mapstructure:"login_secret"`
	LoginURL          string `mapstructure:"login_url"`
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// SourceConfig names one feed to scan.
type SourceConfig struct {
	Label string `mapstructure:"label"`
	URL   string `mapstructure:"url"`
}

// FilterConfig tunes the filter chain.
type FilterConfig struct {
	FailOpen        bool     `mapstructure:"fail_open"`
	LocationMarkers []string `mapstructure:"location_markers"`
	ExtraPromoTerms []string `mapstructure:"extra_promo_terms"`
	ExtraHireTerms  []string `mapstructure:"extra_hire_terms"`
}

// ClassifierConfig selects and tunes the text classifier.
type ClassifierConfig struct {
	// Provider is "gemini" or "none".
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// CheckpointConfig tunes challenge pause behavior.
type CheckpointConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	TokenTTLMinutes    int    `mapstructure:"token_ttl_minutes"`
	WaitTimeoutMinutes int    `mapstructure:"wait_timeout_minutes"`
	PollIntervalMs     int    `mapstructure:"poll_interval_ms"`
}

// DispatchConfig tunes lead delivery pacing.
type DispatchConfig struct {
	SendDelaySeconds int `mapstructure:"send_delay_seconds"`
}

// DedupConfig selects the delivery record store.
type DedupConfig struct {
	// Provider is "postgres" or "memory".
	Provider  string `mapstructure:"provider"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	BackupDir string `mapstructure:"backup_dir"`
}

// SettingsConfig selects the operator settings store.
type SettingsConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// ArtifactsConfig selects where challenge artifacts are stored.
type ArtifactsConfig struct {
	// Provider is "local", "gcs" or "memory".
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig selects the outbound notification channel.
type NotifyConfig struct {
	// Provider is "smtp", "pubsub" or "memory".
	Provider string `mapstructure:"provider"`

	Recipients  []string `mapstructure:"recipients"`
	SMTPTimeout int      `mapstructure:"smtp_timeout_seconds"`

	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RunnerConfig tunes the scan loop.
type RunnerConfig struct {
	MaxSessionRestarts int `mapstructure:"max_session_restarts"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("session.headless", true)
	v.SetDefault("session.nav_timeout_seconds", 25)
	v.SetDefault("filter.fail_open", true)
	v.SetDefault("classifier.provider", "none")
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.temperature", 0.1)
	v.SetDefault("checkpoint.token_ttl_minutes", 15)
	v.SetDefault("checkpoint.wait_timeout_minutes", 30)
	v.SetDefault("checkpoint.poll_interval_ms", 100)
	v.SetDefault("dispatch.send_delay_seconds", 0)
	v.SetDefault("dedup.provider", "memory")
	v.SetDefault("dedup.table", "sent_leads")
	v.SetDefault("dedup.backup_dir", "data/backups")
	v.SetDefault("settings.provider", "memory")
	v.SetDefault("settings.table", "settings")
	v.SetDefault("artifacts.provider", "local")
	v.SetDefault("artifacts.dir", "data/artifacts")
	v.SetDefault("notify.provider", "memory")
	v.SetDefault("notify.smtp_timeout_seconds", 20)
	v.SetDefault("runner.max_session_restarts", 2)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for i, src := range c.Sources {
		if src.Label == "" || src.URL == "" {
			return fmt.Errorf("sources[%d] needs both label and url", i)
		}
	}
	switch c.Classifier.Provider {
	case "none":
	case "gemini":
		if c.Classifier.APIKey == "" {
			return fmt.Errorf("classifier.api_key must be set for the gemini provider")
		}
	default:
		return fmt.Errorf("classifier.provider must be gemini or none")
	}
	switch c.Dedup.Provider {
	case "memory":
	case "postgres":
		if c.Dedup.DSN == "" {
			return fmt.Errorf("dedup.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("dedup.provider must be postgres or memory")
	}
	switch c.Settings.Provider {
	case "memory":
	case "postgres":
		if c.Settings.DSN == "" {
			return fmt.Errorf("settings.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("settings.provider must be postgres or memory")
	}
	switch c.Artifacts.Provider {
	case "local", "memory":
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("artifacts.provider must be local, gcs or memory")
	}
	switch c.Notify.Provider {
	case "memory":
	case "smtp":
		if len(c.Notify.Recipients) == 0 {
			return fmt.Errorf("notify.recipients must be set for the smtp provider")
		}
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicName == "" {
			return fmt.Errorf("notify.project_id and notify.topic_name must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("notify.provider must be smtp, pubsub or memory")
	}
	return nil
}

// LeadSources converts the configured sources into pipeline values.
func (c Config) LeadSources() []lead.Source {
	out := make([]lead.Source, len(c.Sources))
	for i, src := range c.Sources {
		out[i] = lead.Source{Label: src.Label, URL: src.URL}
	}
	return out
}

// ServerTimeout converts the server timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// SendDelay converts the dispatch pacing into a duration.
func (c Config) SendDelay() time.Duration {
	return time.Duration(c.Dispatch.SendDelaySeconds) * time.Second
}
