// Package bridge drives the serial-to-broker pipeline.
//
// A Bridge moves through disconnected, connecting, ready, draining and
// closed. Start opens the broker session and then the serial port, Run polls
// the port until the context is cancelled or a read fails, and Close
// releases both handles. Close may be called from any goroutine, any
// number of times.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"serial-mqtt-bridge/config"
	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/framer"
	"serial-mqtt-bridge/internal/logger"
	"serial-mqtt-bridge/internal/metrics"
	"serial-mqtt-bridge/internal/serial"
	"serial-mqtt-bridge/internal/stats"
)

// State is the lifecycle state of a Bridge
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
	StateDraining     State = "draining"
	StateClosed       State = "closed"
)

// stateOrder ranks states; a bridge only ever moves forward
var stateOrder = map[State]int{
	StateDisconnected: 0,
	StateConnecting:   1,
	StateReady:        2,
	StateDraining:     3,
	StateClosed:       4,
}

const readBufferSize = 256

// ErrNotReady is returned by Run and HandleLine before a successful Start
var ErrNotReady = errors.New("bridge is not ready")

// BrokerConnector opens the broker session
type BrokerConnector func() (broker.Publisher, error)

// PortOpener opens the serial port
type PortOpener func() (serial.Port, error)

type Bridge struct {
	topic        string
	settleDelay  time.Duration
	pollInterval time.Duration

	connect BrokerConnector
	open    PortOpener

	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	framer *framer.Framer

	mu      sync.Mutex
	state   State
	closing bool
	pub     broker.Publisher
	port    serial.Port

	closeOnce sync.Once
}

// New creates a Bridge. metricsService may be nil.
func New(cfg *config.Config, connect BrokerConnector, open PortOpener, log *logger.Logger, metricsService *metrics.Metrics, statsCollector *stats.StatsCollector) *Bridge {
	if statsCollector == nil {
		statsCollector = stats.NewStatsCollector()
	}
	return &Bridge{
		topic:        cfg.Bridge.Topic,
		settleDelay:  cfg.Bridge.SettleDelay,
		pollInterval: cfg.Bridge.PollInterval,
		connect:      connect,
		open:         open,
		logger:       log,
		metrics:      metricsService,
		stats:        statsCollector,
		framer:       framer.New(),
		state:        StateDisconnected,
	}
}

// State returns the current lifecycle state
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the session counters
func (b *Bridge) Stats() *stats.StatsCollector {
	return b.stats
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setStateLocked(s)
}

func (b *Bridge) setStateLocked(s State) {
	if stateOrder[s] <= stateOrder[b.state] {
		return
	}
	b.logger.Debug("bridge state changed", "from", b.state, "to", s)
	b.state = s
}

// attach stores a freshly opened handle unless Close already ran
func (b *Bridge) attach(store func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return false
	}
	store()
	return true
}

// Start connects the broker, then opens the serial port, then waits the
// settle delay. If either step fails every handle already opened is closed
// and the bridge ends up closed. A Close racing Start, or an interrupt
// during the settle delay, is not an error: Start returns nil without
// entering ready, and Run then returns nil.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateDisconnected {
		b.mu.Unlock()
		return fmt.Errorf("cannot start bridge in state %s", b.state)
	}
	b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	pub, err := b.connect()
	if err != nil {
		b.Close()
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	if !b.attach(func() { b.pub = pub }) {
		pub.Close()
		b.logger.Info("bridge closed while connecting")
		return nil
	}
	b.logger.Info("connected to broker")

	port, err := b.open()
	if err != nil {
		b.Close()
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if !b.attach(func() { b.port = port }) {
		port.Close()
		b.logger.Info("bridge closed while opening serial port")
		return nil
	}
	b.logger.Info("serial port opened", "device", port.Name())

	if b.settleDelay > 0 {
		b.logger.Debug("waiting for serial device to settle", "delay", b.settleDelay)
		b.sleep(ctx, b.settleDelay)
	}

	b.mu.Lock()
	if b.closing || ctx.Err() != nil {
		b.setStateLocked(StateDraining)
		b.mu.Unlock()
		b.logger.Info("start interrupted before forwarding")
		return nil
	}
	b.setStateLocked(StateReady)
	b.mu.Unlock()

	b.logger.Info("forwarding readings", "topic", b.topic)
	return nil
}

// Run polls the serial port and publishes every valid reading until ctx is
// cancelled (nil error) or a read fails (the read error). A bridge that is
// already draining or closed returns nil at once.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	state, port := b.state, b.port
	b.mu.Unlock()

	switch {
	case state == StateReady:
	case state == StateDraining, state == StateClosed, ctx.Err() != nil:
		return nil
	default:
		return ErrNotReady
	}

	defer func() {
		if pending := b.framer.Pending(); pending > 0 {
			b.logger.Debug("discarding unterminated line", "bytes", pending)
			b.framer.Reset()
		}
		b.setState(StateDraining)
	}()

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := port.Read(buf)
		if n > 0 {
			b.consume(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, serial.ErrClosed) {
				return nil
			}
			b.logger.Error("serial read failed", "device", port.Name(), "error", err)
			return fmt.Errorf("serial read failed: %w", err)
		}

		// Nothing arrived within the read timeout
		if n == 0 && !b.sleep(ctx, b.pollInterval) {
			return nil
		}
	}
}

func (b *Bridge) consume(p []byte) {
	b.stats.AddBytes(len(p))
	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.AddSerialBytes(len(p))
	})

	for _, line := range b.framer.Write(p) {
		_ = b.HandleLine(line)
	}
}

// sleep waits d or until ctx is done; it reports whether d fully elapsed
func (b *Bridge) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close releases the serial port and the broker session.
// Only the first call has any effect.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closing = true
		b.setStateLocked(StateDraining)
		port, pub := b.port, b.pub
		b.mu.Unlock()

		if port != nil {
			if err := port.Close(); err != nil {
				b.logger.Error("failed to close serial port", "error", err)
			}
		}
		if pub != nil {
			if err := pub.Close(); err != nil {
				b.logger.Error("failed to close broker session", "error", err)
			}
		}

		b.setState(StateClosed)

		fields := []interface{}{
			"stats", b.stats.GetStats(),
			"rate", b.stats.CalculateRate(),
		}
		if pub != nil {
			bs := pub.GetStats()
			fields = append(fields,
				"brokerPublished", bs.MessagesPublished,
				"brokerErrors", bs.Errors)
			if bs.LastError != "" {
				fields = append(fields, "brokerLastError", bs.LastError)
			}
		}
		b.logger.Info("resources released", fields...)
	})
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *Bridge) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
