package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ATTEST_DB_URL", "postgres://localhost/attest")
	t.Setenv("ATTEST_TOKEN_PRIVATE_KEY_PATH", "/keys/private.pem")
	t.Setenv("ATTEST_TOKEN_PUBLIC_KEY_PATH", "/keys/public.pem")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 4201 {
		t.Errorf("HTTP.Port = %d, want 4201", cfg.HTTP.Port)
	}
	if cfg.Mail.CodeTTL != 10*time.Minute {
		t.Errorf("Mail.CodeTTL = %v, want 10m", cfg.Mail.CodeTTL)
	}
	if cfg.Audit.WindowRows != 500 {
		t.Errorf("Audit.WindowRows = %d, want 500", cfg.Audit.WindowRows)
	}
	if cfg.Notify.Backend != "redis" {
		t.Errorf("Notify.Backend = %q, want redis", cfg.Notify.Backend)
	}
	if cfg.Import.EmailDomain != "ofppt-edu.ma" {
		t.Errorf("Import.EmailDomain = %q", cfg.Import.EmailDomain)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ATTEST_HTTP_PORT", "9000")
	t.Setenv("ATTEST_NOTIFY_BACKEND", "memory")
	t.Setenv("ATTEST_PROVIDERS_GOOGLE_ALLOWED_DOMAINS", "isfo.ma,ofppt.ma")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("HTTP.Port = %d, want 9000", cfg.HTTP.Port)
	}
	if cfg.Notify.Backend != "memory" {
		t.Errorf("Notify.Backend = %q, want memory", cfg.Notify.Backend)
	}
	if got := strings.Join(cfg.Providers.Google.AllowedDomains, "|"); got != "isfo.ma|ofppt.ma" {
		t.Errorf("AllowedDomains = %q", got)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing database url",
			env:  map[string]string{"ATTEST_DB_URL": ""},
			want: "ATTEST_DB_URL",
		},
		{
			name: "unknown queue backend",
			env:  map[string]string{"ATTEST_NOTIFY_BACKEND": "kafka"},
			want: "ATTEST_NOTIFY_BACKEND",
		},
		{
			name: "google without state secret",
			env: map[string]string{
				"ATTEST_PROVIDERS_GOOGLE_ENABLED":       "true",
				"ATTEST_PROVIDERS_GOOGLE_CLIENT_ID":     "id",
				"ATTEST_PROVIDERS_GOOGLE_CLIENT_SECRET": "secret",
				"ATTEST_PROVIDERS_GOOGLE_REDIRECT_URL":  "https://example.test/cb",
			},
			want: "OAUTH_STATE_SECRET",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}
