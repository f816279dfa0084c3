package nats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"serial-mqtt-bridge/config"
	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/logger"
	"serial-mqtt-bridge/internal/metrics"
)

// NATSBroker implements broker.Publisher over core NATS
type NATSBroker struct {
	logger  *logger.Logger
	config  *config.Config
	metrics *metrics.Metrics

	conn ConnectionManager

	published uint64
	errors    uint64

	mu          sync.RWMutex
	connectTime time.Time
	lastError   string

	closeOnce sync.Once
}

var _ broker.Publisher = (*NATSBroker)(nil)

// NewBroker creates a new NATS broker session and connects it
func NewBroker(cfg *config.Config, log *logger.Logger, metricsService *metrics.Metrics) (*NATSBroker, error) {
	b := &NATSBroker{
		logger:  log,
		config:  cfg,
		metrics: metricsService,
	}

	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	return b, nil
}

// NewBrokerWithConn wraps an existing connection (for testing)
func NewBrokerWithConn(cfg *config.Config, log *logger.Logger, metricsService *metrics.Metrics, conn Conn) *NATSBroker {
	b := &NATSBroker{
		logger:      log,
		config:      cfg,
		metrics:     metricsService,
		connectTime: time.Now(),
	}
	b.conn = NewConnectionManagerWithConn(b, conn)
	return b
}

// IsConnected implements broker.Publisher
func (b *NATSBroker) IsConnected() bool {
	return b.conn.IsConnected()
}

// Close implements broker.Publisher
func (b *NATSBroker) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Info("shutting down NATS broker")
		b.conn.Disconnect()
	})
	return nil
}

// GetStats implements broker.Publisher
func (b *NATSBroker) GetStats() broker.BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return broker.BrokerStats{
		MessagesPublished: atomic.LoadUint64(&b.published),
		Errors:            atomic.LoadUint64(&b.errors),
		ConnectTime:       b.connectTime,
		LastError:         b.lastError,
	}
}

func (b *NATSBroker) setConnectTime(t time.Time) {
	b.mu.Lock()
	b.connectTime = t
	b.mu.Unlock()
}

func (b *NATSBroker) recordError(err error) {
	atomic.AddUint64(&b.errors, 1)
	b.setLastError(err)
}

func (b *NATSBroker) setLastError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.lastError = err.Error()
	b.mu.Unlock()
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *NATSBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
