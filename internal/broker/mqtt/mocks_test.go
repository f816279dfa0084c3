package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err      error
	complete bool
	done     chan struct{}
}

func NewMockToken() *MockToken {
	t := &MockToken{
		complete: true,
		done:     make(chan struct{}),
	}
	close(t.done)
	return t
}

func NewMockTokenWithError(err error) *MockToken {
	t := NewMockToken()
	t.err = err
	return t
}

// NewPendingMockToken never completes
func NewPendingMockToken() *MockToken {
	return &MockToken{done: make(chan struct{})}
}

func (t *MockToken) Wait() bool                       { return t.complete }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return t.complete }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// published is one recorded Publish call
type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected   atomic.Bool
	disconnects atomic.Int32
	publishFunc func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	published   []published
	mu          sync.RWMutex
}

func NewMockClient() *MockClient {
	m := &MockClient{
		publishFunc: func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
			return NewMockToken()
		},
	}
	m.connected.Store(true)
	return m
}

func (m *MockClient) Connect() mqtt.Token { return NewMockToken() }
func (m *MockClient) Disconnect(quiesce uint) {
	m.disconnects.Add(1)
	m.connected.Store(false)
}
func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.Lock()
	p, _ := payload.([]byte)
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: p})
	m.mu.Unlock()
	return m.publishFunc(topic, qos, retained, payload)
}
func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token             { return NewMockToken() }
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                   { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                              { return m.connected.Load() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader             { return mqtt.ClientOptionsReader{} }

func (m *MockClient) Published() []published {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]published, len(m.published))
	copy(out, m.published)
	return out
}
