package histore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics from a Store.
// Implement it to integrate with a monitoring system; metrics/prometheus
// provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordWrite is called after each Write call. ops is the number of
	// operations in the batch and failed the number rejected with a
	// per-op error. err is the batch level error, if any.
	RecordWrite(ops, failed int, duration time.Duration, err error)

	// RecordRead is called after each point read (Get, Values, Exists,
	// Lookup).
	RecordRead(duration time.Duration, err error)

	// RecordScan is called after Scan, Count and ScanIndex. scanned is the
	// number of records visited, matched the number returned or counted.
	RecordScan(scanned, matched int, duration time.Duration, err error)

	// RecordConflict is called for every unique index conflict.
	RecordConflict(index string)

	// RecordSnapshot is called after each snapshot write.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRead(time.Duration, error)            {}
func (NoopMetricsCollector) RecordScan(int, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordConflict(string)                      {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error) {}

// BasicMetricsCollector keeps simple in-memory counters.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteOps        atomic.Int64
	WriteFailedOps  atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadTotalNanos  atomic.Int64
	ScanCount       atomic.Int64
	ScanErrors      atomic.Int64
	ScanVisited     atomic.Int64
	ScanMatched     atomic.Int64
	Conflicts       atomic.Int64
	SnapshotCount   atomic.Int64
	SnapshotErrors  atomic.Int64
	SnapshotBytes   atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(ops, failed int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteOps.Add(int64(ops))
	b.WriteFailedOps.Add(int64(failed))
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(scanned, matched int, _ time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanVisited.Add(int64(scanned))
	b.ScanMatched.Add(int64(matched))
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordConflict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConflict(string) {
	b.Conflicts.Add(1)
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		WriteCount:     b.WriteCount.Load(),
		WriteOps:       b.WriteOps.Load(),
		WriteFailedOps: b.WriteFailedOps.Load(),
		WriteErrors:    b.WriteErrors.Load(),
		WriteAvgNanos:  avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		ScanCount:      b.ScanCount.Load(),
		ScanErrors:     b.ScanErrors.Load(),
		ScanVisited:    b.ScanVisited.Load(),
		ScanMatched:    b.ScanMatched.Load(),
		Conflicts:      b.Conflicts.Load(),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
		SnapshotBytes:  b.SnapshotBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	WriteCount     int64
	WriteOps       int64
	WriteFailedOps int64
	WriteErrors    int64
	WriteAvgNanos  int64
	ReadCount      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	ScanCount      int64
	ScanErrors     int64
	ScanVisited    int64
	ScanMatched    int64
	Conflicts      int64
	SnapshotCount  int64
	SnapshotErrors int64
	SnapshotBytes  int64
}
