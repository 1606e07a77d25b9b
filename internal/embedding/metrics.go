package embedding

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records provider traffic. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	texts    *prometheus.CounterVec
}

// NewMetrics registers the embedding collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "txembed",
				Name:      "upstream_requests_total",
				Help:      "Embedding provider calls by outcome.",
			},
			[]string{"provider", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "txembed",
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of embedding provider calls in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		texts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "txembed",
				Name:      "embedded_texts_total",
				Help:      "Texts successfully embedded and normalized.",
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) observe(provider string, texts int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = errorOutcome(err)
	}
	m.requests.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err == nil {
		m.texts.WithLabelValues(provider).Add(float64(texts))
	}
}

func errorOutcome(err error) string {
	switch err.(type) {
	case *NetworkError:
		return "network_error"
	case *UpstreamStatusError:
		return "status_error"
	case *ParseError:
		return "parse_error"
	default:
		return "error"
	}
}
