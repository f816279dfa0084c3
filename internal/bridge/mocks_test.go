package bridge

import (
	"errors"
	"sync"
	"time"

	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/serial"
)

// mockPublisher records publishes and can be severed after a number of them
type mockPublisher struct {
	mu        sync.Mutex
	payloads  []string
	topics    []string
	attempts  int
	failAfter int // 0 means never
	severed   bool
	closes    int
}

func (p *mockPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.severed || p.closes > 0 {
		return broker.ErrNotConnected
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
	if p.failAfter > 0 && len(p.payloads) == p.failAfter {
		p.severed = true
	}
	return nil
}

func (p *mockPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.severed && p.closes == 0
}

func (p *mockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *mockPublisher) GetStats() broker.BrokerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return broker.BrokerStats{MessagesPublished: uint64(len(p.payloads))}
}

func (p *mockPublisher) Payloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payloads...)
}

func (p *mockPublisher) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *mockPublisher) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// mockPort replays scripted chunks, then behaves like an idle port
// (or fails with readErr once the script is exhausted)
type mockPort struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	closes  int
}

func newMockPort(chunks ...string) *mockPort {
	p := &mockPort{}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
	return p
}

func (p *mockPort) Name() string { return "mock" }

func (p *mockPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closes > 0 {
		p.mu.Unlock()
		return 0, serial.ErrClosed
	}
	if len(p.chunks) > 0 {
		n := copy(buf, p.chunks[0])
		if n < len(p.chunks[0]) {
			p.chunks[0] = p.chunks[0][n:]
		} else {
			p.chunks = p.chunks[1:]
		}
		p.mu.Unlock()
		return n, nil
	}
	err := p.readErr
	p.mu.Unlock()

	if err != nil {
		return 0, err
	}
	// Emulate the read timeout of an idle port
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	if p.closes > 1 {
		return errors.New("port closed twice")
	}
	return nil
}

func (p *mockPort) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}
