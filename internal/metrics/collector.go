// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"strings"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptimeSeconds"`
	Gateway       *OperationSnapshot            `json:"gateway,omitempty"`
	DBQuery       *OperationSnapshot            `json:"dbQuery,omitempty"`
	StorageWrite  *OperationSnapshot            `json:"storageWrite,omitempty"`
	Backends      map[string]*OperationSnapshot `json:"backends,omitempty"`
}

// Operation names for the collector.
const (
	OpGateway      = "gateway"
	OpDBQuery      = "db_query"
	OpStorageWrite = "storage_write"

	// backendPrefix namespaces per-model backend timings ("backend:moshi").
	backendPrefix = "backend:"
)

// OpBackend returns the operation name for a speech backend.
func OpBackend(model string) string {
	return backendPrefix + model
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. A nil *Collector ignores all records.
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
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordResult records timing and counts an error when err is non-nil.
func (c *Collector) RecordResult(op string, duration time.Duration, err error) {
	c.record(op, duration, err != nil)
}

// Track returns a function that records the elapsed time since Track was called.
//
//	done := mc.Track(metrics.OpDBQuery)
//	rows, err := query(...)
//	done(err)
func (c *Collector) Track(op string) func(error) {
	start := time.Now()
	return func(err error) {
		c.RecordResult(op, time.Since(start), err)
	}
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if failed {
		m.Errors++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Gateway:       snapshotOp(c.ops[OpGateway]),
		DBQuery:       snapshotOp(c.ops[OpDBQuery]),
		StorageWrite:  snapshotOp(c.ops[OpStorageWrite]),
	}
	for op, m := range c.ops {
		model, ok := strings.CutPrefix(op, backendPrefix)
		if !ok {
			continue
		}
		if snap.Backends == nil {
			snap.Backends = make(map[string]*OperationSnapshot)
		}
		snap.Backends[model] = snapshotOp(m)
	}
	return snap
}
