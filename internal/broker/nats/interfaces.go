package nats

// Conn is the subset of *nats.Conn the broker uses
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	ConnectedUrl() string
	Close()
}

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetConnection() Conn
}
