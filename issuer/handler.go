package issuer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/enesunal-m/realtimechat"
	"github.com/enesunal-m/realtimechat/webrtc"
)

// Handler serves the credential route.
type Handler struct {
	cfg     Config
	hc      *http.Client
	log     *realtimechat.Logger
	metrics *Metrics
}

// NewHandler returns a credential handler. The http client carries no timeout of
// its own; UpstreamTimeout is applied per request.
func NewHandler(cfg Config, l *realtimechat.Logger, m *Metrics) *Handler {
	return &Handler{cfg: cfg, hc: &http.Client{}, log: l, metrics: m}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// ServeHTTP issues one ephemeral credential per GET.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.metrics.observe(outcomeMethodNotAllowed)
		w.Header().Set("Allow", http.MethodGet)
		respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if h.cfg.APIKey == "" {
		h.metrics.observe(outcomeMissingSecret)
		h.log.Error("issuer_secret_missing", nil)
		respondError(w, http.StatusInternalServerError, "API Key not found")
		return
	}

	ctx := r.Context()
	if h.cfg.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.UpstreamTimeout)
		defer cancel()
	}

	start := time.Now()
	er, err := webrtc.MintEphemeralKey(ctx, h.hc, h.cfg.BaseURL, realtimechat.Bearer(h.cfg.APIKey), h.cfg.SessionRequest())
	h.metrics.observeUpstream(time.Since(start).Seconds())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.observe(outcomeOK)
	h.log.Info("credential_issued", map[string]any{"session_id": er.ID, "expires_at": er.ClientSecret.ExpiresAt})
	respondJSON(w, http.StatusOK, webrtc.IssuerResponse{EphemeralKey: er.ClientSecret.Value})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	captureError(r, err, "create session failed")

	var pe *realtimechat.ProviderError
	if errors.As(err, &pe) {
		h.metrics.observe(outcomeRejected)
		h.log.Error("create_session_rejected", map[string]any{"status": pe.StatusCode, "body": pe.Body})
		respondJSON(w, pe.StatusCode, errorResponse{Error: "Failed to create session", Details: pe.Body})
		return
	}

	h.metrics.observe(outcomeUpstreamError)
	h.log.Error("create_session_failed", map[string]any{"error": err})
	respondJSON(w, http.StatusBadGateway, errorResponse{Error: "Failed to create session", Details: err.Error()})
}
