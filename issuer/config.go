// Package issuer serves short-lived provider credentials to audio clients.
//
// The issuer is the only process holding the long-lived provider secret. Each
// GET on the credential route makes exactly one session-creation call upstream
// and answers with the ephemeral key alone.
package issuer

import (
	"os"
	"strconv"
	"time"

	"github.com/enesunal-m/realtimechat"
)

const (
	// CredentialPath is the route clients fetch ephemeral credentials from.
	CredentialPath = "/api/openai-realtime/init"

	// DefaultAddr is the issuer listen address.
	DefaultAddr = ":8080"

	// DefaultUpstreamTimeout bounds one session-creation call.
	DefaultUpstreamTimeout = 15 * time.Second
)

// Config holds the issuer settings.
type Config struct {
	// APIKey is the long-lived provider secret. Empty makes every request fail with 500.
	APIKey string

	BaseURL string
	Model   string
	Voice   string
	Addr    string

	// AllowedOrigins enables CORS for the listed origins ("*" allows any).
	AllowedOrigins []string

	// RateLimit is requests per second across all callers; 0 disables limiting.
	RateLimit float64
	RateBurst int

	UpstreamTimeout time.Duration

	SentryDSN         string
	SentryEnvironment string
}

// DefaultConfig returns a Config without a secret.
func DefaultConfig() Config {
	return Config{
		BaseURL:           realtimechat.DefaultBaseURL,
		Model:             realtimechat.DefaultModel,
		Voice:             realtimechat.DefaultVoice,
		Addr:              DefaultAddr,
		UpstreamTimeout:   DefaultUpstreamTimeout,
		SentryEnvironment: "development",
	}
}

// LoadConfigFromEnv reads the issuer configuration from the environment.
// A missing OPENAI_API_KEY is not an error here; requests report it instead.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.BaseURL = env("OPENAI_BASE_URL", cfg.BaseURL)
	cfg.Model = env("OPENAI_REALTIME_MODEL", cfg.Model)
	cfg.Voice = env("OPENAI_REALTIME_VOICE", cfg.Voice)
	cfg.Addr = env("ADDR", cfg.Addr)
	cfg.SentryDSN = os.Getenv("SENTRY_DSN")
	cfg.SentryEnvironment = env("SENTRY_ENVIRONMENT", cfg.SentryEnvironment)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = realtimechat.SplitCSV(v)
	}

	if v := os.Getenv("ISSUER_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, realtimechat.NewConfigError("RateLimit", v, "must be a number")
		}
		cfg.RateLimit = f
	}
	if v := os.Getenv("ISSUER_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, realtimechat.NewConfigError("RateBurst", v, "must be an integer")
		}
		cfg.RateBurst = n
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, realtimechat.NewConfigError("UpstreamTimeout", v, "invalid duration")
		}
		cfg.UpstreamTimeout = d
	}

	return cfg, cfg.Validate()
}

// Validate checks everything except the secret.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return realtimechat.NewConfigError("BaseURL", "", "cannot be empty")
	}
	if err := realtimechat.ValidateSessionRequest(c.SessionRequest()); err != nil {
		return realtimechat.NewConfigError("Model/Voice", c.Voice, err.Error())
	}
	if c.RateLimit < 0 {
		return realtimechat.NewConfigError("RateLimit", strconv.FormatFloat(c.RateLimit, 'f', -1, 64), "cannot be negative")
	}
	if c.RateBurst < 0 {
		return realtimechat.NewConfigError("RateBurst", strconv.Itoa(c.RateBurst), "cannot be negative")
	}
	if c.UpstreamTimeout < 0 {
		return realtimechat.NewConfigError("UpstreamTimeout", c.UpstreamTimeout.String(), "cannot be negative")
	}
	return nil
}

// SessionRequest is the fixed body sent upstream on every call.
func (c Config) SessionRequest() realtimechat.SessionRequest {
	return realtimechat.SessionRequest{Model: c.Model, Voice: c.Voice}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
