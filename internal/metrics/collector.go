// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	Cancelled int64
	Rejected  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	Cancelled   int64   `json:"cancelled"`
	Rejected    int64   `json:"rejected"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	Operations    map[string]*OperationSnapshot `json:"operations"`
}

// Outcome classifies a finished run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

// Collector aggregates in-memory runtime statistics keyed by operation name.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for a completed operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordRun(op, duration, OutcomeCompleted)
}

// RecordRun records timing and outcome for a finished run.
func (c *Collector) RecordRun(op string, duration time.Duration, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	switch outcome {
	case OutcomeFailed:
		m.Failures++
	case OutcomeCancelled:
		m.Cancelled++
	}
}

// RecordRejected counts a submit that was refused because the kind was busy.
func (c *Collector) RecordRejected(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Rejected++
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || (m.Count == 0 && m.Rejected == 0) {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		Cancelled:   m.Cancelled,
		Rejected:    m.Rejected,
		TotalTimeMs: m.TotalTime.Milliseconds(),
	}
	if m.Count > 0 {
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		snap.MinTimeMs = m.MinTime.Milliseconds()
		snap.MaxTimeMs = m.MaxTime.Milliseconds()
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]*OperationSnapshot, len(c.ops))
	for name, m := range c.ops {
		if snap := snapshotOp(m); snap != nil {
			ops[name] = snap
		}
	}
	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    ops,
	}
}
