package server

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"imgkv/internal/store"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates the request metrics and store gauges and registers
// them with reg.
func NewMetrics(reg prometheus.Registerer, s *store.Store) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imgkv",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of handled requests",
			},
			[]string{"op", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "imgkv",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)

	if s != nil {
		reg.MustRegister(
			storeKeysGauge(s, store.KindRaw),
			storeKeysGauge(s, store.KindImage),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: "imgkv",
					Subsystem: "store",
					Name:      "poisoned",
					Help:      "Store poisoning status (0=healthy, 1=poisoned)",
				},
				func() float64 {
					if s.Poisoned() {
						return 1
					}
					return 0
				},
			),
		)
	}
	return m
}

func storeKeysGauge(s *store.Store, kind store.Kind) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "imgkv",
			Subsystem:   "store",
			Name:        "keys",
			Help:        "Number of stored keys by value kind",
			ConstLabels: prometheus.Labels{"kind": string(kind)},
		},
		func() float64 {
			st, err := s.Stats(context.Background())
			if err != nil {
				return 0
			}
			if kind == store.KindImage {
				return float64(st.Images)
			}
			return float64(st.Raw)
		},
	)
}

// RecordRequest counts a finished request and observes its latency.
func (m *Metrics) RecordRequest(op string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(d.Seconds())
}
