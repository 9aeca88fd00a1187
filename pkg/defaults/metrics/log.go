package metrics

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/logflow/pmcore/pkg/interfaces"
)

// LogLevel selects the metric kinds a LogMetrics writes.
type LogLevel int

const (
	// LogLevelAll writes every metric.
	LogLevelAll LogLevel = iota
	// LogLevelTimers writes timers only.
	LogLevelTimers
	// LogLevelNone writes nothing.
	LogLevelNone
)

// LogMetrics writes metrics to a logger. Every observation is a line unless
// summary mode is on; then observations are aggregated per series (name and
// tags) and written sorted on Flush.
type LogMetrics struct {
	mu       sync.Mutex
	logger   *log.Logger
	prefix   string
	minLevel LogLevel
	summary  bool
	series   map[string]*series
}

type series struct {
	kind string
	name string
	tags string
	n    int64
	sum  float64
	max  float64
	last float64
}

// LogMetricsOption configures LogMetrics.
type LogMetricsOption func(*LogMetrics)

// WithPrefix sets the line prefix.
func WithPrefix(prefix string) LogMetricsOption {
	return func(m *LogMetrics) {
		m.prefix = prefix
	}
}

// WithMinLevel sets the minimum log level.
func WithMinLevel(level LogLevel) LogMetricsOption {
	return func(m *LogMetrics) {
		m.minLevel = level
	}
}

// WithSummary aggregates observations until Flush: counters are summed,
// gauges keep their last value, histograms and timers report count, mean
// and max.
func WithSummary() LogMetricsOption {
	return func(m *LogMetrics) {
		m.summary = true
	}
}

// NewLogMetrics creates a log-based metrics exporter writing to logger,
// or to the standard logger when logger is nil.
func NewLogMetrics(logger *log.Logger, opts ...LogMetricsOption) *LogMetrics {
	if logger == nil {
		logger = log.Default()
	}
	m := &LogMetrics{logger: logger, prefix: "[metrics]", series: make(map[string]*series)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LogMetrics) Counter(name string, value int64, tags map[string]string) {
	if m.minLevel < LogLevelTimers {
		m.observe("counter", name, float64(value), tags)
	}
}

func (m *LogMetrics) Gauge(name string, value float64, tags map[string]string) {
	if m.minLevel < LogLevelTimers {
		m.observe("gauge", name, value, tags)
	}
}

func (m *LogMetrics) Histogram(name string, value float64, tags map[string]string) {
	if m.minLevel < LogLevelTimers {
		m.observe("histogram", name, value, tags)
	}
}

func (m *LogMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	if m.minLevel < LogLevelNone {
		m.observe("timer", name, duration.Seconds(), tags)
	}
}

func (m *LogMetrics) observe(kind, name string, v float64, tags map[string]string) {
	t := formatTags(tags)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.summary {
		m.logger.Printf("%s %s %s=%s%s", m.prefix, kind, name, formatValue(kind, v), t)
		return
	}
	key := kind + "\x00" + name + "\x00" + t
	s, ok := m.series[key]
	if !ok {
		s = &series{kind: kind, name: name, tags: t}
		m.series[key] = s
	}
	s.n++
	s.sum += v
	s.last = v
	if s.n == 1 || v > s.max {
		s.max = v
	}
}

// Flush writes the aggregated series and resets them. It is a no-op
// outside summary mode.
func (m *LogMetrics) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.series))
	for k := range m.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := m.series[k]
		switch s.kind {
		case "counter":
			m.logger.Printf("%s counter %s=%d%s", m.prefix, s.name, int64(s.sum), s.tags)
		case "gauge":
			m.logger.Printf("%s gauge %s=%s%s", m.prefix, s.name, formatValue(s.kind, s.last), s.tags)
		default:
			m.logger.Printf("%s %s %s count=%d mean=%s max=%s%s", m.prefix, s.kind, s.name, s.n,
				formatValue(s.kind, s.sum/float64(s.n)), formatValue(s.kind, s.max), s.tags)
		}
	}
	m.series = make(map[string]*series)
	return nil
}

// Close flushes the exporter.
func (m *LogMetrics) Close() error {
	return m.Flush()
}

func formatValue(kind string, v float64) string {
	switch kind {
	case "counter":
		return fmt.Sprintf("%d", int64(v))
	case "timer":
		return time.Duration(math.Round(v * float64(time.Second))).String()
	default:
		return fmt.Sprintf("%.4f", v)
	}
}

// formatTags renders tags sorted by key.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := sortedKeys(tags)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + tags[k]
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ interfaces.MetricsExporter = (*LogMetrics)(nil)
