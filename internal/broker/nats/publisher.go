package nats

import (
	"fmt"
	"sync/atomic"
	"time"

	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/metrics"
)

// Publish sends a message to the subject derived from topic
func (b *NATSBroker) Publish(topic string, payload []byte) error {
	if !b.conn.IsConnected() {
		b.recordError(broker.ErrNotConnected)
		return broker.ErrNotConnected
	}

	// Convert MQTT topic to NATS subject
	subject := ToNATSSubject(topic)

	start := time.Now()
	if err := b.conn.GetConnection().Publish(subject, payload); err != nil {
		b.recordError(err)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	atomic.AddUint64(&b.published, 1)
	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObservePublish(time.Since(start))
	})

	b.logger.Debug("published message",
		"topic", topic,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}
