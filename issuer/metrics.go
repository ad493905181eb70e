package issuer

import "github.com/prometheus/client_golang/prometheus"

// Request outcomes, used as the "outcome" label.
const (
	outcomeOK               = "ok"
	outcomeMethodNotAllowed = "method_not_allowed"
	outcomeMissingSecret    = "missing_secret"
	outcomeRejected         = "rejected"
	outcomeUpstreamError    = "upstream_error"
	outcomeRateLimited      = "rate_limited"
)

// Metrics counts issuer requests and times upstream calls.
type Metrics struct {
	requests *prometheus.CounterVec
	upstream prometheus.Histogram
}

// NewMetrics registers the issuer metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realtimechat",
			Subsystem: "issuer",
			Name:      "requests_total",
			Help:      "credential requests by outcome",
		}, []string{"outcome"}),
		upstream: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "realtimechat",
			Subsystem: "issuer",
			Name:      "upstream_duration_seconds",
			Help:      "session-creation call latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requests, m.upstream)
	return m
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeUpstream(seconds float64) {
	if m == nil {
		return
	}
	m.upstream.Observe(seconds)
}
