package issuer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/enesunal-m/realtimechat"
)

type upstream struct {
	srv   *httptest.Server
	calls atomic.Int64
	auth  atomic.Value
	body  atomic.Value
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/realtime/sessions", r.URL.Path)
		u.auth.Store(r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		u.body.Store(string(b))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = baseURL
	return cfg
}

func serve(h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssue_Success(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"id":"sess_1","client_secret":{"value":"abc123","expires_at":1700000000}}`)
	h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, CredentialPath+"?model=other&voice=alloy", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ephemeralKey":"abc123"}`, rec.Body.String())
	assert.Equal(t, int64(1), up.calls.Load())
	assert.Equal(t, "Bearer sk-test", up.auth.Load())

	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(up.body.Load().(string)), &sent))
	assert.Equal(t, map[string]string{"model": "gpt-4o-realtime-preview-2024-12-17", "voice": "verse"}, sent,
		"model and voice come from configuration, never from the request")
}

func TestIssue_MethodNotAllowed(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{}`)
	h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions} {
		rec := serve(h, method, CredentialPath, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.JSONEq(t, `{"error":"Method Not Allowed"}`, rec.Body.String(), method)
	}
	assert.Zero(t, up.calls.Load())
}

func TestIssue_MissingSecret(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{}`)
	cfg := testConfig(up.srv.URL)
	cfg.APIKey = ""
	h := NewRouter(cfg, nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, CredentialPath, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"API Key not found"}`, rec.Body.String())
	assert.Zero(t, up.calls.Load())
}

func TestIssue_ProviderRejects(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid_key"},
		{"rate limited upstream", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`},
		{"server error", http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, tt.status, tt.body)
			h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

			rec := serve(h, http.MethodGet, CredentialPath, nil)

			assert.Equal(t, tt.status, rec.Code)
			var got errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, errorResponse{Error: "Failed to create session", Details: tt.body}, got)
			assert.Equal(t, int64(1), up.calls.Load())
		})
	}
}

func TestIssue_ProviderRejectsExactBody(t *testing.T) {
	up := newUpstream(t, http.StatusUnauthorized, "invalid_key")
	h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, CredentialPath, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to create session","details":"invalid_key"}`, rec.Body.String())
}

func TestIssue_UpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	h := NewRouter(testConfig(dead.URL), nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, CredentialPath, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var got errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Failed to create session", got.Error)
	assert.NotEmpty(t, got.Details)
	assert.NotContains(t, rec.Body.String(), "sk-test")
}

func TestIssue_UndecodableSuccess(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `not json`)
	h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, CredentialPath, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to create session")
}

func TestIssue_RateLimit(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"client_secret":{"value":"abc123"}}`)
	cfg := testConfig(up.srv.URL)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := NewRouter(cfg, nil, prometheus.NewRegistry())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, CredentialPath, nil).Code)

	rec := serve(h, http.MethodGet, CredentialPath, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, rec.Body.String())
	assert.Equal(t, int64(1), up.calls.Load())
}

func TestCORS(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"client_secret":{"value":"abc123"}}`)
	cfg := testConfig(up.srv.URL)
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	h := NewRouter(cfg, nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodOptions, CredentialPath, map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")

	rec = serve(h, http.MethodGet, CredentialPath, map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(h, http.MethodGet, CredentialPath, map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// a bare OPTIONS is not a preflight
	rec = serve(h, http.MethodOptions, CredentialPath, map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, int64(2), up.calls.Load())
}

func TestHealthAndMetrics(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"client_secret":{"value":"abc123"}}`)
	h := NewRouter(testConfig(up.srv.URL), nil, prometheus.NewRegistry())

	rec := serve(h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	serve(h, http.MethodGet, CredentialPath, nil)
	serve(h, http.MethodPost, CredentialPath, nil)

	rec = serve(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `realtimechat_issuer_requests_total{outcome="ok"} 1`)
	assert.Contains(t, body, `realtimechat_issuer_requests_total{outcome="method_not_allowed"} 1`)
	assert.Contains(t, body, "realtimechat_issuer_upstream_duration_seconds_count 1")
}

func TestSentryRecovery(t *testing.T) {
	h := withSentryRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := serve(h, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "internal server error"))
}

func TestNewServer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := realtimechat.NewLoggerWithZap(realtimechat.LogLevelInfo, zap.New(core))
	cfg := testConfig("https://api.example.com/v1")
	cfg.Addr = ":18080"

	srv := NewServer(cfg, l, prometheus.NewRegistry())

	assert.Equal(t, ":18080", srv.Addr)
	assert.NotZero(t, srv.ReadHeaderTimeout)
	require.NotNil(t, srv.ErrorLog)
	srv.ErrorLog.Print("http: TLS handshake error from 10.0.0.1: EOF")
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "TLS handshake error")

	rec := serve(srv.Handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
