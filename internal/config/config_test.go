package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  timeout_seconds: 45
auth:
  enabled: true
  api_key: secret
  admin_token: admin-secret
session:
  login_identity: bot@example.com
  login_secret: pw
  headless: false
sources:
  - label: search-backend
    url: https://example.com/search?keywords=backend
filter:
  fail_open: false
  location_markers: ["ohio"]
classifier:
  provider: gemini
  api_key: ai-key
  model: gemini-1.5-pro
checkpoint:
  base_url: https://leadscout.example.com
  wait_timeout_minutes: 10
dispatch:
  send_delay_seconds: 3
dedup:
  provider: postgres
  dsn: postgres://localhost/leadscout
  table: sent_leads
settings:
  provider: postgres
  dsn: postgres://localhost/leadscout
notify:
  provider: smtp
  recipients: ["ops@example.com"]
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" || cfg.Auth.AdminToken != "admin-secret" {
		t.Fatalf("expected auth overrides to apply: %+v", cfg.Auth)
	}
	if cfg.Session.Headless {
		t.Fatalf("expected session.headless=false override to apply")
	}
	sources := cfg.LeadSources()
	if len(sources) != 1 || sources[0].Label != "search-backend" {
		t.Fatalf("expected one configured source, got %+v", sources)
	}
	if cfg.Filter.FailOpen {
		t.Fatalf("expected filter.fail_open=false override to apply")
	}
	if cfg.Classifier.Provider != "gemini" || cfg.Classifier.Model != "gemini-1.5-pro" {
		t.Fatalf("expected classifier overrides: %+v", cfg.Classifier)
	}
	if cfg.Checkpoint.WaitTimeoutMinutes != 10 {
		t.Fatalf("expected checkpoint wait timeout 10, got %d", cfg.Checkpoint.WaitTimeoutMinutes)
	}
	if got := cfg.SendDelay(); got != 3*time.Second {
		t.Fatalf("expected send delay 3s, got %v", got)
	}
	if got := cfg.ServerTimeout(); got != 45*time.Second {
		t.Fatalf("expected server timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Dedup.Provider != "memory" || cfg.Dedup.Table != "sent_leads" {
		t.Fatalf("expected memory dedup defaults, got %+v", cfg.Dedup)
	}
	if cfg.Classifier.Provider != "none" || cfg.Classifier.Model != "gemini-1.5-flash" {
		t.Fatalf("expected classifier defaults, got %+v", cfg.Classifier)
	}
	if cfg.Checkpoint.TokenTTLMinutes != 15 || cfg.Checkpoint.WaitTimeoutMinutes != 30 {
		t.Fatalf("expected checkpoint defaults, got %+v", cfg.Checkpoint)
	}
	if !cfg.Filter.FailOpen {
		t.Fatalf("expected filter.fail_open default true")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Classifier: ClassifierConfig{Provider: "none"},
		Dedup:      DedupConfig{Provider: "memory"},
		Settings:   SettingsConfig{Provider: "memory"},
		Artifacts:  ArtifactsConfig{Provider: "local"},
		Notify:     NotifyConfig{Provider: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "source missing url",
			cfg: func() Config {
				c := base
				c.Sources = []SourceConfig{{Label: "s"}}
				return c
			}(),
			want: "sources[0]",
		},
		{
			name: "gemini missing api key",
			cfg: func() Config {
				c := base
				c.Classifier.Provider = "gemini"
				return c
			}(),
			want: "classifier.api_key",
		},
		{
			name: "postgres dedup missing dsn",
			cfg: func() Config {
				c := base
				c.Dedup.Provider = "postgres"
				return c
			}(),
			want: "dedup.dsn",
		},
		{
			name: "unknown notify provider",
			cfg: func() Config {
				c := base
				c.Notify.Provider = "carrier-pigeon"
				return c
			}(),
			want: "notify.provider",
		},
		{
			name: "gcs artifacts missing bucket",
			cfg: func() Config {
				c := base
				c.Artifacts.Provider = "gcs"
				return c
			}(),
			want: "artifacts.gcs_bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
