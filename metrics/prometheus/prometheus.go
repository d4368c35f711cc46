// Package prometheus exports histore metrics through client_golang.
//
//	reg := prometheus.NewRegistry()
//	c, err := histoprom.NewCollector(reg, "orders")
//	s, err := histore.Open(ctx, histore.WithMetricsCollector(c))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "histore"

// Collector implements histore.MetricsCollector.
type Collector struct {
	latency       *prometheus.HistogramVec
	writeOps      *prometheus.CounterVec
	scanRecords   *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	snapshotBytes prometheus.Counter
}

// NewCollector creates the metrics and registers them on reg. store is
// attached as a constant label so several stores can share a registry.
func NewCollector(reg prometheus.Registerer, store string) (*Collector, error) {
	labels := prometheus.Labels{"store": store}

	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "operation_duration_seconds",
			Help:        "Latency of store operations.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op", "status"}),
		writeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "write_ops_total",
			Help:        "Write operations by outcome.",
			ConstLabels: labels,
		}, []string{"result"}),
		scanRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "scan_records_total",
			Help:        "Records visited and matched by scans.",
			ConstLabels: labels,
		}, []string{"kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "unique_conflicts_total",
			Help:        "Unique index conflicts by index.",
			ConstLabels: labels,
		}, []string{"index"}),
		snapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "snapshot_bytes_total",
			Help:        "Bytes written by snapshots.",
			ConstLabels: labels,
		}),
	}

	for _, m := range []prometheus.Collector{c.latency, c.writeOps, c.scanRecords, c.conflicts, c.snapshotBytes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWrite implements histore.MetricsCollector.
func (c *Collector) RecordWrite(ops, failed int, d time.Duration, err error) {
	c.latency.WithLabelValues("write", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	c.writeOps.WithLabelValues("applied").Add(float64(ops - failed))
	c.writeOps.WithLabelValues("rejected").Add(float64(failed))
}

// RecordRead implements histore.MetricsCollector.
func (c *Collector) RecordRead(d time.Duration, err error) {
	c.latency.WithLabelValues("read", status(err)).Observe(d.Seconds())
}

// RecordScan implements histore.MetricsCollector.
func (c *Collector) RecordScan(scanned, matched int, d time.Duration, err error) {
	c.latency.WithLabelValues("scan", status(err)).Observe(d.Seconds())
	c.scanRecords.WithLabelValues("visited").Add(float64(scanned))
	c.scanRecords.WithLabelValues("matched").Add(float64(matched))
}

// RecordConflict implements histore.MetricsCollector.
func (c *Collector) RecordConflict(index string) {
	c.conflicts.WithLabelValues(index).Inc()
}

// RecordSnapshot implements histore.MetricsCollector.
func (c *Collector) RecordSnapshot(bytes int64, d time.Duration, err error) {
	c.latency.WithLabelValues("snapshot", status(err)).Observe(d.Seconds())
	if err == nil {
		c.snapshotBytes.Add(float64(bytes))
	}
}
