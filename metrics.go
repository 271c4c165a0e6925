package slsi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/slsi/fapi"
)

type metrics struct {
	requests      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	indications   *prometheus.CounterVec
	stale         prometheus.Counter
	scanResults   prometheus.Counter
	scanDropped   prometheus.Counter
	peers         *prometheus.GaugeVec
	cfmLatency    prometheus.Histogram
	serviceFailed prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slsi_mlme_requests_total",
				Help: "Number of requests sent to the firmware, by signal.",
			},
			[]string{"signal"}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slsi_mlme_failures_total",
				Help: "Number of failed requests, by signal and reason.",
			},
			[]string{"signal", "reason"}),
		indications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slsi_rx_indications_total",
				Help: "Number of signals received from the firmware, by signal.",
			},
			[]string{"signal"}),
		stale: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "slsi_rx_stale_signals_total",
				Help: "Number of confirmations and indications discarded as stale.",
			}),
		scanResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "slsi_scan_results_total",
				Help: "Number of scan results delivered upstream.",
			}),
		scanDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "slsi_scan_results_dropped_total",
				Help: "Number of scan results purged beyond the result cap.",
			}),
		peers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slsi_vif_peers",
				Help: "Number of peer records, by vif.",
			},
			[]string{"vif"}),
		cfmLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "slsi_mlme_cfm_latency_seconds",
				Help:    "Time from request transmission to confirmation.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			}),
		serviceFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "slsi_service_failed",
				Help: "Set to 1 once the firmware has been declared dead.",
			}),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.requests, m.failures, m.indications, m.stale, m.scanResults,
		m.scanDropped, m.peers, m.cfmLatency, m.serviceFailed,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) request(id fapi.SignalID) { m.requests.WithLabelValues(id.String()).Inc() }

func (m *metrics) failure(id fapi.SignalID, reason string) {
	m.failures.WithLabelValues(id.String(), reason).Inc()
}

func (m *metrics) rx(id fapi.SignalID) { m.indications.WithLabelValues(id.String()).Inc() }

func (m *metrics) latency(since time.Time) { m.cfmLatency.Observe(time.Since(since).Seconds()) }

func (m *metrics) setPeers(ifnum uint16, n int) {
	m.peers.WithLabelValues(strconv.Itoa(int(ifnum))).Set(float64(n))
}
