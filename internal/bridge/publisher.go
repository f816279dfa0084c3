package bridge

import (
	"time"

	"serial-mqtt-bridge/internal/metrics"
	"serial-mqtt-bridge/internal/reading"
)

// HandleLine validates one framed line and publishes it as a reading.
// It returns nil when the reading was published, an error satisfying
// reading.IsIgnorable when the line was dropped, and the publish error
// otherwise. Neither error stops the polling loop.
func (b *Bridge) HandleLine(line string) error {
	b.mu.Lock()
	pub := b.pub
	b.mu.Unlock()
	if pub == nil {
		return ErrNotReady
	}

	b.stats.IncLines()
	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncLines()
	})

	r, err := reading.Parse(line)
	if err != nil {
		b.stats.IncDropped()
		b.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncReadings(metrics.ResultDropped)
		})
		b.logger.Debug("dropping line", "line", line, "reason", err)
		return err
	}

	start := time.Now()
	if err := pub.Publish(b.topic, r.Payload()); err != nil {
		b.stats.IncFailed()
		b.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncReadings(metrics.ResultFailed)
		})
		b.logger.Error("failed to publish reading",
			"light", r.Value,
			"topic", b.topic,
			"connected", pub.IsConnected(),
			"error", err)
		return err
	}

	b.stats.RecordPublished(r.Value)
	b.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncReadings(metrics.ResultPublished)
		m.SetLastReading(r.Value)
	})
	b.logger.Info("published reading",
		"light", r.Value,
		"topic", b.topic,
		"took", time.Since(start))

	return nil
}
