// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lightbridge"

// Reading results
const (
	ResultPublished = "published"
	ResultDropped   = "dropped"
	ResultFailed    = "failed"
)

// Metrics holds the bridge collectors
type Metrics struct {
	linesTotal      prometheus.Counter
	readingsTotal   *prometheus.CounterVec
	serialBytes     prometheus.Counter
	brokerConnected prometheus.Gauge
	lastReading     prometheus.Gauge
	publishDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		linesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Complete lines framed from the serial stream",
		}),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Lines by outcome: published, dropped or failed",
		}, []string{"result"}),
		serialBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_bytes_total",
			Help:      "Bytes read from the serial port",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "Broker connection status (1 connected, 0 disconnected)",
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading",
			Help:      "Most recently published light level",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single publish call",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.linesTotal,
		m.readingsTotal,
		m.serialBytes,
		m.brokerConnected,
		m.lastReading,
		m.publishDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) IncLines() {
	m.linesTotal.Inc()
}

func (m *Metrics) IncReadings(result string) {
	m.readingsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) AddSerialBytes(n int) {
	m.serialBytes.Add(float64(n))
}

func (m *Metrics) SetBrokerConnectionStatus(connected bool) {
	if connected {
		m.brokerConnected.Set(1)
	} else {
		m.brokerConnected.Set(0)
	}
}

func (m *Metrics) SetLastReading(value int32) {
	m.lastReading.Set(float64(value))
}

func (m *Metrics) ObservePublish(d time.Duration) {
	m.publishDuration.Observe(d.Seconds())
}

// NewServer returns an HTTP server exposing gatherer at path
func NewServer(addr, path string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
