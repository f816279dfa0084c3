package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"serial-mqtt-bridge/config"
	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/logger"
	"serial-mqtt-bridge/internal/metrics"
)

// MQTTBroker implements broker.Publisher over a single paho session
type MQTTBroker struct {
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

var _ broker.Publisher = (*MQTTBroker)(nil)

// NewBroker creates a new MQTT broker session and connects it
func NewBroker(cfg *config.Config, log *logger.Logger, metricsService *metrics.Metrics) (*MQTTBroker, error) {
	b := &MQTTBroker{
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

// NewBrokerWithClient wraps an already connected client (for testing)
func NewBrokerWithClient(cfg *config.Config, log *logger.Logger, metricsService *metrics.Metrics, client mqtt.Client) *MQTTBroker {
	b := &MQTTBroker{
		logger:      log,
		config:      cfg,
		metrics:     metricsService,
		connectTime: time.Now(),
	}
	b.conn = NewConnectionManagerWithClient(b, client)
	return b
}

// IsConnected implements broker.Publisher
func (b *MQTTBroker) IsConnected() bool {
	return b.conn.IsConnected()
}

// Close implements broker.Publisher
func (b *MQTTBroker) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Info("shutting down mqtt broker")
		b.conn.Disconnect()
	})
	return nil
}

// GetStats implements broker.Publisher
func (b *MQTTBroker) GetStats() broker.BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return broker.BrokerStats{
		MessagesPublished: atomic.LoadUint64(&b.published),
		Errors:            atomic.LoadUint64(&b.errors),
		ConnectTime:       b.connectTime,
		LastError:         b.lastError,
	}
}

func (b *MQTTBroker) setConnectTime(t time.Time) {
	b.mu.Lock()
	b.connectTime = t
	b.mu.Unlock()
}

func (b *MQTTBroker) recordError(err error) {
	atomic.AddUint64(&b.errors, 1)
	b.setLastError(err)
}

func (b *MQTTBroker) setLastError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.lastError = err.Error()
	b.mu.Unlock()
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *MQTTBroker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
