package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logflow/pmcore/pkg/interfaces"
)

// PrometheusMetrics records metrics into a private Prometheus registry.
// Collectors are created on first use; the label set of a metric is fixed
// by the tags of its first observation and later tags outside that set are
// dropped.
type PrometheusMetrics struct {
	mu         sync.Mutex
	registry   *prometheus.Registry
	namespace  string
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

// NewPrometheusMetrics creates an exporter whose metric names are prefixed
// with namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		registry:   prometheus.NewRegistry(),
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labels:     make(map[string][]string),
	}
}

// Registry returns the registry the collectors are registered with.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Counter adds value to a counter.
func (p *PrometheusMetrics) Counter(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      metricName(name) + "_total",
			Help:      name,
		}, p.labelNames(name, tags))
		if err := p.registry.Register(vec); err != nil {
			return
		}
		p.counters[name] = vec
	}
	vec.WithLabelValues(p.labelValues(name, tags)...).Add(float64(value))
}

// Gauge sets a gauge.
func (p *PrometheusMetrics) Gauge(name string, value float64, tags map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      name,
		}, p.labelNames(name, tags))
		if err := p.registry.Register(vec); err != nil {
			return
		}
		p.gauges[name] = vec
	}
	vec.WithLabelValues(p.labelValues(name, tags)...).Set(value)
}

// Histogram observes value with the default buckets.
func (p *PrometheusMetrics) Histogram(name string, value float64, tags map[string]string) {
	p.observe(name, "", value, prometheus.DefBuckets, tags)
}

// Timer observes a duration in seconds.
func (p *PrometheusMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	p.observe(name, "_seconds", duration.Seconds(), prometheus.ExponentialBuckets(0.001, 4, 10), tags)
}

func (p *PrometheusMetrics) observe(name, suffix string, value float64, buckets []float64, tags map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      metricName(name) + suffix,
			Help:      name,
			Buckets:   buckets,
		}, p.labelNames(name, tags))
		if err := p.registry.Register(vec); err != nil {
			return
		}
		p.histograms[name] = vec
	}
	vec.WithLabelValues(p.labelValues(name, tags)...).Observe(value)
}

// Flush is a no-op; the registry is read on scrape.
func (p *PrometheusMetrics) Flush() error { return nil }

// Close is a no-op.
func (p *PrometheusMetrics) Close() error { return nil }

func (p *PrometheusMetrics) labelNames(name string, tags map[string]string) []string {
	if names, ok := p.labels[name]; ok {
		return names
	}
	names := sortedKeys(tags)
	p.labels[name] = names
	return names
}

func (p *PrometheusMetrics) labelValues(name string, tags map[string]string) []string {
	names := p.labels[name]
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = tags[n]
	}
	return values
}

// metricName turns a dotted name into a Prometheus identifier, dropping
// the leading component when it repeats the namespace.
func metricName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 && name[:i] == "pmcore" {
		name = name[i+1:]
	}
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

var _ interfaces.MetricsExporter = (*PrometheusMetrics)(nil)
