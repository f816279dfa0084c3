// Package broker defines the message sink the bridge publishes readings to
package broker

import (
	"errors"
	"time"
)

// ErrNotConnected is returned when publishing on a lost or closed session
var ErrNotConnected = errors.New("not connected to broker")

// ErrPublishTimeout is returned when a publish is not handed off in time
var ErrPublishTimeout = errors.New("publish timed out")

// BrokerState represents the current state of a broker connection
type BrokerState string

const (
	// BrokerStateDisconnected indicates the broker is not connected
	BrokerStateDisconnected BrokerState = "disconnected"
	// BrokerStateConnected indicates the broker is connected
	BrokerStateConnected BrokerState = "connected"
	// BrokerStateClosed indicates the session was closed locally
	BrokerStateClosed BrokerState = "closed"
)

// Publisher is a persistent broker session.
// Publish delivers at most once: QoS 0, not retained, no retry.
// Close is idempotent and safe to call while a Publish is in flight.
type Publisher interface {
	// Publish sends one message to topic
	Publish(topic string, payload []byte) error

	// IsConnected returns the current connection state
	IsConnected() bool

	// Close disconnects the session
	Close() error

	// GetStats returns current broker statistics
	GetStats() BrokerStats
}

// BrokerStats holds statistics for a broker session
type BrokerStats struct {
	MessagesPublished uint64
	Errors            uint64
	ConnectTime       time.Time
	LastError         string
}
