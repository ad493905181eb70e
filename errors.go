package realtimechat

import (
	"errors"
	"fmt"
	"net/url"
)

// Common error variables
var (
	// ErrInvalidConfig is returned when required configuration fields are missing.
	ErrInvalidConfig = errors.New("realtimechat: invalid configuration")

	// ErrProviderRejected is returned when an upstream HTTP endpoint answers with a
	// non-success status. The concrete error is a *ProviderError.
	ErrProviderRejected = errors.New("realtimechat: provider rejected request")

	// ErrSessionActive is returned by Start while a chat session is starting or running.
	ErrSessionActive = errors.New("realtimechat: chat session already active")

	// ErrMicrophoneUnavailable is returned when the audio source cannot be opened.
	// There is no fallback source.
	ErrMicrophoneUnavailable = errors.New("realtimechat: microphone unavailable")

	// ErrNegotiationFailed is returned when a step of the offer/answer exchange fails.
	ErrNegotiationFailed = errors.New("realtimechat: negotiation failed")

	// ErrMissingCredential is returned when the issuer answers without an ephemeral key.
	ErrMissingCredential = errors.New("realtimechat: ephemeral credential missing")

	// ErrSessionStopped is returned by Start when Stop was called before the session came up.
	ErrSessionStopped = errors.New("realtimechat: session stopped while starting")
)

// ConfigError represents a configuration validation error.
// It provides detailed information about which configuration field is invalid.
type ConfigError struct {
	Field   string // The configuration field that is invalid
	Value   string // The invalid value (if safe to log)
	Message string // Detailed error message
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("realtimechat: invalid config field %q (value: %q): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("realtimechat: invalid config field %q: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ProviderError carries a non-success answer from an upstream endpoint verbatim.
// The issuer relays StatusCode and Body to its caller unchanged.
type ProviderError struct {
	Operation  string // "create session", "fetch credential", "negotiate"
	URL        string
	StatusCode int
	Body       string // raw response text
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("realtimechat: %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("realtimechat: %s failed with status %d", e.Operation, e.StatusCode)
}

// Is implements error matching for ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderRejected
}

// NegotiationError wraps a failure in one step of the WebRTC session setup.
type NegotiationError struct {
	Step  string // e.g. "create offer", "set remote description"
	Cause error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("realtimechat: negotiation step %q failed: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying error.
func (e *NegotiationError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for NegotiationError.
func (e *NegotiationError) Is(target error) bool {
	return target == ErrNegotiationFailed
}

// NewConfigError creates a new configuration error.
func NewConfigError(field, value, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(operation, url string, status int, body string) *ProviderError {
	return &ProviderError{
		Operation:  operation,
		URL:        url,
		StatusCode: status,
		Body:       body,
	}
}

// NewNegotiationError creates a new negotiation error.
func NewNegotiationError(step string, cause error) *NegotiationError {
	return &NegotiationError{Step: step, Cause: cause}
}

// ValidateConfig checks a client Config.
func ValidateConfig(cfg Config) error {
	if cfg.IssuerURL == "" {
		return NewConfigError("IssuerURL", "", "cannot be empty")
	}
	if !isAbsoluteURL(cfg.IssuerURL) {
		return NewConfigError("IssuerURL", cfg.IssuerURL, "must be an absolute URL")
	}

	if cfg.BaseURL == "" {
		return NewConfigError("BaseURL", "", "cannot be empty")
	}
	if !isAbsoluteURL(cfg.BaseURL) {
		return NewConfigError("BaseURL", cfg.BaseURL, "must be an absolute URL")
	}

	if cfg.Model == "" {
		return NewConfigError("Model", "", "cannot be empty")
	}

	if cfg.RequestTimeout < 0 {
		return NewConfigError("RequestTimeout", cfg.RequestTimeout.String(), "cannot be negative")
	}

	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
