package realtimechat

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential represents an authentication method for provider requests.
// Implementations must apply the appropriate authentication headers to HTTP requests.
type Credential interface{ Apply(h http.Header) }

// Bearer implements Credential using OAuth2 Bearer token authentication.
// Both the long-lived secret and the ephemeral credential are sent this way.
type Bearer string

// Apply adds the Bearer token to the Authorization header.
func (b Bearer) Apply(h http.Header) {
	if b != "" {
		h.Set("Authorization", "Bearer "+string(b))
	}
}

const (
	// DefaultBaseURL is the root of the provider's REST API.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the realtime model requested for every session.
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"

	// DefaultVoice is the voice requested for every session.
	DefaultVoice = "verse"

	// DefaultIssuerURL is where the audio client fetches ephemeral credentials.
	DefaultIssuerURL = "http://localhost:8080/api/openai-realtime/init"

	// DefaultRequestTimeout bounds each HTTP call made by the audio client.
	DefaultRequestTimeout = 20 * time.Second

	// DefaultPanelAddr is the listen address of the local control panel.
	DefaultPanelAddr = "127.0.0.1:8090"
)

// Config holds the settings of the realtime audio client.
type Config struct {
	// IssuerURL is the session-token issuer endpoint returning {"ephemeralKey": ...}.
	// Required: Yes
	IssuerURL string `yaml:"issuer_url"`

	// BaseURL is the provider REST root; the negotiation endpoint is {BaseURL}/realtime.
	// Required: Yes
	BaseURL string `yaml:"base_url"`

	// Model is passed as the model query parameter of the negotiation endpoint.
	// Required: Yes
	Model string `yaml:"model"`

	// ICEServers lists STUN/TURN URLs for the peer connection.
	// Required: No
	ICEServers []string `yaml:"ice_servers"`

	// RequestTimeout bounds each HTTP request. Zero disables the timeout.
	// Required: No
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// InputPath is the Ogg/Opus file played as the outbound microphone track.
	InputPath string `yaml:"input"`

	// OutputPath is the Ogg file the inbound provider audio is recorded to.
	OutputPath string `yaml:"output"`

	// PanelAddr is the listen address of the control panel.
	PanelAddr string `yaml:"panel_addr"`

	// StructuredLogger receives operational events. Nil disables logging.
	StructuredLogger *Logger `yaml:"-"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		IssuerURL:      DefaultIssuerURL,
		BaseURL:        DefaultBaseURL,
		Model:          DefaultModel,
		RequestTimeout: DefaultRequestTimeout,
		InputPath:      "input.ogg",
		OutputPath:     "output.ogg",
		PanelAddr:      DefaultPanelAddr,
	}
}

// LoadConfig builds a client Config from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, NewConfigError("file", path, fmt.Sprintf("invalid YAML: %v", err))
		}
	}

	cfg.IssuerURL = env("REALTIMECHAT_ISSUER_URL", cfg.IssuerURL)
	cfg.BaseURL = env("OPENAI_BASE_URL", cfg.BaseURL)
	cfg.Model = env("OPENAI_REALTIME_MODEL", cfg.Model)
	cfg.InputPath = env("REALTIMECHAT_INPUT", cfg.InputPath)
	cfg.OutputPath = env("REALTIMECHAT_OUTPUT", cfg.OutputPath)
	cfg.PanelAddr = env("PANEL_ADDR", cfg.PanelAddr)
	if v := os.Getenv("REALTIMECHAT_ICE_SERVERS"); v != "" {
		cfg.ICEServers = SplitCSV(v)
	}
	if v := os.Getenv("REALTIMECHAT_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, NewConfigError("RequestTimeout", v, "invalid duration")
		}
		cfg.RequestTimeout = d
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HTTPClient returns an http.Client honoring RequestTimeout.
func (c Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.RequestTimeout}
}

// SplitCSV splits a comma separated list, dropping empty entries.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
