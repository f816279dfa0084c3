package nats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"serial-mqtt-bridge/internal/metrics"
)

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	broker    *NATSBroker
	conn      Conn
	connected atomic.Bool
}

// NewConnectionManager creates a new NATS connection manager
func NewConnectionManager(broker *NATSBroker) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		broker: broker,
	}

	// Establish initial connection
	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// NewConnectionManagerWithConn wraps an existing connection (for testing)
func NewConnectionManagerWithConn(broker *NATSBroker, conn Conn) ConnectionManager {
	cm := &ConnectionManagerImpl{
		broker: broker,
		conn:   conn,
	}
	cm.connected.Store(true)
	return cm
}

// Connect establishes connection to the NATS server
func (cm *ConnectionManagerImpl) Connect() error {
	cfg := cm.broker.config.Broker

	name := cfg.ClientID
	if name == "" {
		name = "lightbridge"
	}

	// No reconnect: a lost session stays lost until restart
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.PingInterval(cfg.KeepAlive),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ClosedHandler(cm.handleClosed),
	}

	if cfg.TLS.Enable {
		opts = append(opts, nats.ClientCert(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
	}

	// Add authentication if configured
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	cm.broker.logger.Info("connecting to NATS server", "url", cfg.BrokerURL())

	conn, err := nats.Connect(cfg.BrokerURL(), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}
	cm.conn = conn

	cm.connected.Store(true)
	cm.broker.setConnectTime(time.Now())

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(true)
	})

	cm.broker.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())

	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	if cm.conn != nil {
		cm.broker.logger.Info("disconnecting from NATS server")
		cm.connected.Store(false)
		cm.conn.Close()
	}
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.conn != nil && cm.connected.Load() && cm.conn.IsConnected()
}

// GetConnection returns the NATS connection
func (cm *ConnectionManagerImpl) GetConnection() Conn {
	return cm.conn
}

func (cm *ConnectionManagerImpl) handleDisconnect(conn *nats.Conn, err error) {
	cm.broker.logger.Error("disconnected from NATS server", "error", err)
	cm.connected.Store(false)
	cm.broker.setLastError(err)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}

func (cm *ConnectionManagerImpl) handleClosed(conn *nats.Conn) {
	cm.broker.logger.Debug("NATS connection closed")
	cm.connected.Store(false)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}
