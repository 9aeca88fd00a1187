// Package metrics provides the bundled metrics exporters.
package metrics

import (
	"time"

	"github.com/logflow/pmcore/pkg/interfaces"
)

// NoopMetrics discards all metrics.
type NoopMetrics struct{}

// NewNoopMetrics creates a new noop metrics exporter.
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) Counter(string, int64, map[string]string) {}
func (n *NoopMetrics) Gauge(string, float64, map[string]string) {}
func (n *NoopMetrics) Histogram(string, float64, map[string]string) {}
func (n *NoopMetrics) Timer(string, time.Duration, map[string]string) {}
func (n *NoopMetrics) Flush() error { return nil }
func (n *NoopMetrics) Close() error { return nil }

var _ interfaces.MetricsExporter = (*NoopMetrics)(nil)
