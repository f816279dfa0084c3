package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	"serial-mqtt-bridge/internal/broker"
	"serial-mqtt-bridge/internal/metrics"
)

const (
	qosAtMostOnce = 0
	notRetained   = false
)

// Publish sends a message to a specific topic at QoS 0, not retained
func (b *MQTTBroker) Publish(topic string, payload []byte) error {
	if !b.conn.IsConnected() {
		b.recordError(broker.ErrNotConnected)
		return broker.ErrNotConnected
	}

	start := time.Now()
	token := b.conn.GetClient().Publish(topic, qosAtMostOnce, notRetained, payload)

	timeout := b.config.Broker.PublishTimeout
	if timeout > 0 && !token.WaitTimeout(timeout) {
		err := fmt.Errorf("%w after %s", broker.ErrPublishTimeout, timeout)
		b.recordError(err)
		return err
	} else if timeout <= 0 {
		token.Wait()
	}

	if err := token.Error(); err != nil {
		b.recordError(err)
		b.logger.Debug("mqtt publish failed",
			"error", err,
			"topic", topic)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	atomic.AddUint64(&b.published, 1)
	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObservePublish(time.Since(start))
	})

	b.logger.Debug("published message",
		"topic", topic,
		"payloadSize", len(payload))

	return nil
}
