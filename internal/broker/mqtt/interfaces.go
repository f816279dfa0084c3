package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
}
