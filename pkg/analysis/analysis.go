// Package analysis ties the process mining operations to one explicit run
// context: configuration, logger, tracer, metrics and a cache of artifacts
// derived from logs (variants, directly-follows graphs, footprints, prefix
// trees).
//
// Derived artifacts are cached by log identity. A log must not be modified
// while a Context caches artifacts of it; call Forget after changing it.
package analysis

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/logflow/pmcore/pkg/config"
	"github.com/logflow/pmcore/pkg/defaults/metrics"
	"github.com/logflow/pmcore/pkg/defaults/tracer"
	"github.com/logflow/pmcore/pkg/dfg"
	"github.com/logflow/pmcore/pkg/eventlog"
	"github.com/logflow/pmcore/pkg/footprints"
	"github.com/logflow/pmcore/pkg/interfaces"
	"github.com/logflow/pmcore/pkg/pmpt"
)

// DefaultCacheTTL is how long derived artifacts stay cached.
const DefaultCacheTTL = 10 * time.Minute

// Context carries the collaborators of one analysis run. It is safe for
// concurrent use.
type Context struct {
	RunID   string
	Config  *config.Config
	Keys    eventlog.Keys
	Logger  *log.Logger
	Tracer  interfaces.Tracer
	Metrics interfaces.MetricsExporter

	cache *gocache.Cache
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Context) {
		c.Logger = l
	}
}

// WithTracer sets the tracer.
func WithTracer(t interfaces.Tracer) Option {
	return func(c *Context) {
		c.Tracer = t
	}
}

// WithMetrics sets the metrics exporter.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(c *Context) {
		c.Metrics = m
	}
}

// WithCacheTTL sets how long derived artifacts stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Context) {
		c.cache = gocache.New(ttl, 2*ttl)
	}
}

// New creates a context over cfg, or over config.Default() when cfg is
// nil. Without options it logs to stderr and discards spans and metrics.
func New(cfg *config.Config, opts ...Option) *Context {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Context{
		RunID:   uuid.NewString(),
		Config:  cfg,
		Keys:    eventlog.KeysFromConfig(cfg.Log),
		Logger:  log.New(os.Stderr, "[pmcore] ", log.LstdFlags),
		Tracer:  tracer.NewNoopTracer(),
		Metrics: metrics.NewNoopMetrics(),
		cache:   gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close flushes metrics and shuts the tracer down.
func (c *Context) Close() error {
	c.cache.Flush()
	err := c.Metrics.Close()
	if terr := c.Tracer.Close(); err == nil {
		err = terr
	}
	return err
}

// tags returns the base metric tags of an operation.
func (c *Context) tags(op string, extra ...string) map[string]string {
	t := map[string]string{interfaces.TagOperation: op, interfaces.TagRunID: c.RunID}
	for i := 0; i+1 < len(extra); i += 2 {
		t[extra[i]] = extra[i+1]
	}
	return t
}

// observe starts a span and returns the function that ends it, recording
// the duration under metric and the error, if any, on the span.
func (c *Context) observe(ctx context.Context, span, metric string, tags map[string]string) (context.Context, func(error)) {
	attrs := make(map[string]interface{}, len(tags))
	for k, v := range tags {
		attrs[k] = v
	}
	start := time.Now()
	ctx, s := c.Tracer.StartSpan(ctx, span, interfaces.WithSpanAttributes(attrs))
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			s.RecordError(err)
		} else {
			s.SetStatus(interfaces.SpanStatusOK, "")
		}
		s.End()
		done := make(map[string]string, len(tags)+1)
		for k, v := range tags {
			done[k] = v
		}
		done[interfaces.TagStatus] = status
		c.Metrics.Timer(metric, time.Since(start), done)
	}
}

// cached returns the artifact kind of l, building it on a miss.
func cached[T any](c *Context, l *eventlog.EventLog, kind string, build func() T) T {
	key := cacheKey(l, kind)
	if v, ok := c.cache.Get(key); ok {
		c.Metrics.Counter(interfaces.MetricCacheHits, 1, map[string]string{"kind": kind})
		return v.(T)
	}
	c.Metrics.Counter(interfaces.MetricCacheMisses, 1, map[string]string{"kind": kind})
	v := build()
	c.cache.SetDefault(key, v)
	return v
}

func cacheKey(l *eventlog.EventLog, kind string) string {
	return fmt.Sprintf("%p/%s", l, kind)
}

// Forget drops the cached artifacts of l.
func (c *Context) Forget(l *eventlog.EventLog) {
	for _, kind := range []string{"variants", "dfg", "footprints", "prefix_tree"} {
		c.cache.Delete(cacheKey(l, kind))
	}
}

// Variants returns the variants of l under the configured activity key.
func (c *Context) Variants(l *eventlog.EventLog) *eventlog.Variants {
	return cached(c, l, "variants", func() *eventlog.Variants {
		return eventlog.GetVariants(l, c.Keys.Activity)
	})
}

// DFG returns the directly-follows graph of l.
func (c *Context) DFG(l *eventlog.EventLog) *dfg.Graph {
	return cached(c, l, "dfg", func() *dfg.Graph {
		return dfg.FromVariants(c.Variants(l))
	})
}

// Footprints returns the footprints of l.
func (c *Context) Footprints(l *eventlog.EventLog) *footprints.Footprints {
	return cached(c, l, "footprints", func() *footprints.Footprints {
		return footprints.FromVariants(c.Variants(l))
	})
}

// PrefixTree returns the prefix tree of the variants of l.
func (c *Context) PrefixTree(l *eventlog.EventLog) *pmpt.Tree {
	return cached(c, l, "prefix_tree", func() *pmpt.Tree {
		return pmpt.FromVariants(c.Variants(l))
	})
}
