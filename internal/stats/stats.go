package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector keeps running counters for one bridge session
type StatsCollector struct {
	StartTime time.Time
	BytesRead uint64
	Lines     uint64
	Published uint64
	Dropped   uint64
	Failed    uint64
	lastValue atomic.Int64
	lastAt    atomic.Int64 // unix nanos, 0 when nothing was published
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime: time.Now(),
	}
}

func (s *StatsCollector) AddBytes(n int) {
	atomic.AddUint64(&s.BytesRead, uint64(n))
}

func (s *StatsCollector) IncLines() {
	atomic.AddUint64(&s.Lines, 1)
}

func (s *StatsCollector) IncDropped() {
	atomic.AddUint64(&s.Dropped, 1)
}

func (s *StatsCollector) IncFailed() {
	atomic.AddUint64(&s.Failed, 1)
}

// RecordPublished counts a published reading and remembers its value
func (s *StatsCollector) RecordPublished(value int32) {
	atomic.AddUint64(&s.Published, 1)
	s.lastValue.Store(int64(value))
	s.lastAt.Store(time.Now().UnixNano())
}

// LastReading returns the last published value and whether there was one
func (s *StatsCollector) LastReading() (int32, bool) {
	if s.lastAt.Load() == 0 {
		return 0, false
	}
	return int32(s.lastValue.Load()), true
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"uptime":     time.Since(s.StartTime).Round(time.Millisecond).String(),
		"bytes_read": atomic.LoadUint64(&s.BytesRead),
		"lines":      atomic.LoadUint64(&s.Lines),
		"published":  atomic.LoadUint64(&s.Published),
		"dropped":    atomic.LoadUint64(&s.Dropped),
		"failed":     atomic.LoadUint64(&s.Failed),
	}
	if v, ok := s.LastReading(); ok {
		stats["last_reading"] = v
		stats["last_published_at"] = time.Unix(0, s.lastAt.Load())
	}
	return stats
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate returns published readings per second since start
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.Published)) / uptime
}
