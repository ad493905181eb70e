package realtimechat

import (
	"errors"
	"fmt"
)

// SessionRequest is the body sent to the provider's session-creation endpoint.
// The issuer fills it once from its configuration; callers never influence it.
type SessionRequest struct {
	// Model is the realtime model the ephemeral credential is scoped to.
	Model string `json:"model"`

	// Voice specifies which voice to use for audio responses.
	Voice string `json:"voice,omitempty"`
}

// ValidVoices lists the voices accepted by the realtime session endpoint.
var ValidVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// ValidateSessionRequest performs validation on a session request.
func ValidateSessionRequest(s SessionRequest) error {
	if s.Model == "" {
		return errors.New("model cannot be empty")
	}

	if s.Voice != "" {
		valid := false
		for _, v := range ValidVoices {
			if s.Voice == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid voice %q, must be one of: %v", s.Voice, ValidVoices)
		}
	}

	return nil
}
