package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"serial-mqtt-bridge/internal/metrics"
)

const (
	clientIDPrefix = "lightbridge-"
	// MQTT 3.1 servers only have to accept client IDs up to 23 bytes
	maxClientIDLen = 23
	quiesceMillis  = 250
)

// ConnectionManagerImpl handles MQTT connection lifecycle
type ConnectionManagerImpl struct {
	broker    *MQTTBroker
	client    mqtt.Client
	connected atomic.Bool
}

// GenerateClientID returns a random client ID that fits MQTT 3.1 limits
func GenerateClientID() string {
	id := clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:maxClientIDLen]
}

// NewConnectionManager creates a new MQTT connection manager and connects it
func NewConnectionManager(broker *MQTTBroker) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		broker: broker,
	}

	cfg := broker.config.Broker

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = GenerateClientID()
	}

	// No reconnect: a lost session stays lost until restart
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetStore(mqtt.NewMemoryStore()).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetWriteTimeout(cfg.PublishTimeout)

	if cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	// Set up connection handlers
	opts.OnConnect = cm.handleConnect
	opts.OnConnectionLost = cm.handleDisconnect

	cm.client = mqtt.NewClient(opts)

	broker.logger.Info("connecting to mqtt broker",
		"broker", cfg.BrokerURL(),
		"clientId", clientID)

	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// NewConnectionManagerWithClient creates a connection manager with a provided client (for testing)
func NewConnectionManagerWithClient(broker *MQTTBroker, client mqtt.Client) ConnectionManager {
	cm := &ConnectionManagerImpl{
		broker: broker,
		client: client,
	}
	cm.connected.Store(true)
	return cm
}

// Connect establishes connection to the MQTT broker
func (cm *ConnectionManagerImpl) Connect() error {
	if token := cm.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	// OnConnect may not have run yet
	cm.markConnected()
	return nil
}

// Disconnect cleanly disconnects from the MQTT broker
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.broker.logger.Info("disconnecting from mqtt broker")
	cm.connected.Store(false)
	cm.client.Disconnect(quiesceMillis)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetClient returns the MQTT client instance
func (cm *ConnectionManagerImpl) GetClient() mqtt.Client {
	return cm.client
}

func (cm *ConnectionManagerImpl) markConnected() {
	if cm.connected.Swap(true) {
		return
	}
	cm.broker.setConnectTime(time.Now())
	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(true)
	})
}

// handleConnect processes successful connections
func (cm *ConnectionManagerImpl) handleConnect(client mqtt.Client) {
	cm.broker.logger.Info("mqtt client connected", "broker", cm.broker.config.Broker.BrokerURL())
	cm.markConnected()
}

// handleDisconnect processes connection loss
func (cm *ConnectionManagerImpl) handleDisconnect(client mqtt.Client, err error) {
	cm.broker.logger.Error("mqtt connection lost", "error", err)
	cm.connected.Store(false)
	cm.broker.setLastError(err)

	cm.broker.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}

// newTLSConfig loads the client key pair and the CA that signs the broker
func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", caFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
