package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime settings.
type Config struct {
	App       AppConfig       `envPrefix:"ATTEST_"`
	HTTP      HTTPConfig      `envPrefix:"ATTEST_HTTP_"`
	Database  DatabaseConfig  `envPrefix:"ATTEST_DB_"`
	Redis     RedisConfig     `envPrefix:"ATTEST_REDIS_"`
	Token     TokenConfig     `envPrefix:"ATTEST_TOKEN_"`
	Security  SecurityConfig  `envPrefix:"ATTEST_SECURITY_"`
	Providers ProvidersConfig `envPrefix:"ATTEST_PROVIDERS_"`
	Mail      MailConfig      `envPrefix:"ATTEST_MAIL_"`
	Notify    NotifyConfig    `envPrefix:"ATTEST_NOTIFY_"`
	Import    ImportConfig    `envPrefix:"ATTEST_IMPORT_"`
	Audit     AuditConfig     `envPrefix:"ATTEST_AUDIT_"`
}

type AppConfig struct {
	Environment string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"attestation-service"`
}

type HTTPConfig struct {
	Host              string        `env:"HOST" envDefault:"0.0.0.0"`
	Port              int           `env:"PORT" envDefault:"4201"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"25s"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	TLSCertFile       string        `env:"TLS_CERT_FILE"`
	TLSKeyFile        string        `env:"TLS_KEY_FILE"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	EnableTLS bool   `env:"ENABLE_TLS" envDefault:"false"`
	Namespace string `env:"NAMESPACE" envDefault:"attest"`
}

type TokenConfig struct {
	Issuer         string        `env:"ISSUER" envDefault:"https://attestations.isfo.local"`
	Audience       string        `env:"AUDIENCE" envDefault:"attestation-portal"`
	PrivateKeyPath string        `env:"PRIVATE_KEY_PATH"`
	PublicKeyPath  string        `env:"PUBLIC_KEY_PATH"`
	AccessTokenTTL time.Duration `env:"ACCESS_TTL" envDefault:"8h"`
}

type SecurityConfig struct {
	PasswordMinLength int    `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Memory      uint32 `env:"ARGON2_MEMORY" envDefault:"65536"`
	Argon2Threads     uint8  `env:"ARGON2_THREADS" envDefault:"2"`
	Argon2KeyLength   uint32 `env:"ARGON2_KEY_LENGTH" envDefault:"32"`
	OAuthStateSecret  string `env:"OAUTH_STATE_SECRET"`
	LoginRateLimit    int    `env:"LOGIN_RATE_LIMIT" envDefault:"30"`
	CodeRateLimit     int    `env:"CODE_RATE_LIMIT" envDefault:"5"`
}

type ProvidersConfig struct {
	Google GoogleProviderConfig `envPrefix:"GOOGLE_"`
}

type GoogleProviderConfig struct {
	Enabled        bool     `env:"ENABLED" envDefault:"false"`
	ClientID       string   `env:"CLIENT_ID"`
	ClientSecret   string   `env:"CLIENT_SECRET"`
	RedirectURL    string   `env:"REDIRECT_URL"`
	AllowedDomains []string `env:"ALLOWED_DOMAINS" envSeparator:","`
}

// MailConfig points at an HTTP email provider exposing POST /emails.
type MailConfig struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://api.resend.com"`
	APIKey   string        `env:"API_KEY"`
	From     string        `env:"FROM" envDefault:"OFPPT ISFO <onboarding@resend.dev>"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Footer   string        `env:"FOOTER" envDefault:"Institut Spécialisé de Formation de l'Offshoring - Casablanca"`
	CodeTTL  time.Duration `env:"CODE_TTL" envDefault:"10m"`
	Location string        `env:"LOCATION" envDefault:"Africa/Casablanca"`
}

type NotifyConfig struct {
	Backend  string `env:"BACKEND" envDefault:"redis"`
	QueueKey string `env:"QUEUE_KEY" envDefault:"notifications"`
	Inline   bool   `env:"INLINE_WORKER" envDefault:"true"`
}

type ImportConfig struct {
	EmailDomain string `env:"EMAIL_DOMAIN" envDefault:"ofppt-edu.ma"`
}

type AuditConfig struct {
	WindowRows int `env:"WINDOW_ROWS" envDefault:"500"`
}

// Load parses environment variables into Config and performs validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and cross-field rules.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("ATTEST_DB_URL is required")
	}
	if c.Token.PrivateKeyPath == "" || c.Token.PublicKeyPath == "" {
		return fmt.Errorf("ATTEST_TOKEN_PRIVATE_KEY_PATH and ATTEST_TOKEN_PUBLIC_KEY_PATH are required")
	}
	switch c.Notify.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("ATTEST_NOTIFY_BACKEND must be redis or memory, got %q", c.Notify.Backend)
	}
	if c.Audit.WindowRows <= 0 {
		return fmt.Errorf("ATTEST_AUDIT_WINDOW_ROWS must be positive")
	}

	if c.Providers.Google.Enabled {
		if c.Providers.Google.ClientID == "" || c.Providers.Google.ClientSecret == "" || c.Providers.Google.RedirectURL == "" {
			return fmt.Errorf("google oauth requires CLIENT_ID, CLIENT_SECRET, and REDIRECT_URL")
		}
		if c.Security.OAuthStateSecret == "" {
			return fmt.Errorf("ATTEST_SECURITY_OAUTH_STATE_SECRET is required when Google OAuth is enabled")
		}
	}
	return nil
}
