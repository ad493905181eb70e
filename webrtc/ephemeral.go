package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/enesunal-m/realtimechat"
)

// maxBodyBytes caps how much of an upstream response is buffered.
const maxBodyBytes = 1 << 20

// SessionsURL is the provider's session-creation endpoint.
func SessionsURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/realtime/sessions"
}

// NegotiationURL is the provider's SDP offer/answer endpoint for a model.
func NegotiationURL(baseURL, model string) string {
	return strings.TrimRight(baseURL, "/") + "/realtime?model=" + url.QueryEscape(model)
}

// EphemeralResponse is the subset of the session-creation answer the module reads.
type EphemeralResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// IssuerResponse is the body served by the session-token issuer.
type IssuerResponse struct {
	EphemeralKey string `json:"ephemeralKey"`
}

// MintEphemeralKey asks the provider for a short-lived credential, authenticating with the
// long-lived secret carried by cred. A non-2xx answer is returned as *realtimechat.ProviderError
// holding the raw response text.
func MintEphemeralKey(ctx context.Context, hc *http.Client, baseURL string, cred realtimechat.Credential, sr realtimechat.SessionRequest) (*EphemeralResponse, error) {
	if err := realtimechat.ValidateSessionRequest(sr); err != nil {
		return nil, err
	}
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	u := SessionsURL(baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	cred.Apply(req.Header)
	req.Header.Set("Content-Type", "application/json")

	b, status, err := do(orDefault(hc, 15*time.Second), req)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, realtimechat.NewProviderError("create session", u, status, string(b))
	}

	var er EphemeralResponse
	if err := json.Unmarshal(b, &er); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if er.ClientSecret.Value == "" {
		return nil, realtimechat.ErrMissingCredential
	}
	return &er, nil
}

// FetchEphemeralKey obtains an ephemeral credential from the session-token issuer.
func FetchEphemeralKey(ctx context.Context, hc *http.Client, issuerURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	b, status, err := do(orDefault(hc, 20*time.Second), req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", realtimechat.NewProviderError("fetch credential", issuerURL, status, string(b))
	}

	var ir IssuerResponse
	if err := json.Unmarshal(b, &ir); err != nil {
		return "", fmt.Errorf("decode issuer response: %w", err)
	}
	if ir.EphemeralKey == "" {
		return "", realtimechat.ErrMissingCredential
	}
	return ir.EphemeralKey, nil
}

// ExchangeSDP posts a local offer to the negotiation endpoint and returns the whole
// response body as the answer SDP.
func ExchangeSDP(ctx context.Context, hc *http.Client, negotiationURL, ephemeral, offerSDP string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, negotiationURL, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	realtimechat.Bearer(ephemeral).Apply(req.Header)
	req.Header.Set("Content-Type", "application/sdp")

	b, status, err := do(orDefault(hc, 20*time.Second), req)
	if err != nil {
		return "", err
	}
	if status/100 != 2 {
		return "", realtimechat.NewProviderError("negotiate", negotiationURL, status, string(b))
	}
	return string(b), nil
}

func do(hc *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return b, resp.StatusCode, nil
}

func orDefault(hc *http.Client, timeout time.Duration) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: timeout}
}
