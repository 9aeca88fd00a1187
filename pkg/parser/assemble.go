package parser

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/pmcore/internal/model"
	"github.com/logflow/pmcore/internal/pool"
	"github.com/logflow/pmcore/pkg/errors"
	"github.com/logflow/pmcore/pkg/eventlog"
)

// recordBuffer is the channel capacity between a parser and Assemble.
const recordBuffer = 256

// recordSource hands out pooled records to a parser and takes them back
// once Assemble has copied them.
type recordSource struct {
	records *pool.RecordPool
}

func newRecordSource() recordSource {
	return recordSource{records: pool.NewRecordPool()}
}

// Release returns a record to the parser's pool.
func (s recordSource) Release(r *model.Record) {
	s.records.Put(r)
}

// send delivers r or gives up when ctx ends.
func (s recordSource) send(ctx context.Context, out chan<- *model.Record, r *model.Record) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		s.records.Put(r)
		return errors.ContextCanceled("parse")
	}
}

type releaser interface {
	Release(*model.Record)
}

// Assemble runs p over r and builds the event log: rows are grouped by
// case id, traces are ordered by case id and events by completion time,
// keeping row order on ties. Events without timestamp borrow a neighbor's;
// cases without any timestamp are skipped with a warning.
func Assemble(ctx context.Context, p RecordParser, r io.Reader, cfg Config) (*eventlog.EventLog, error) {
	keys := cfg.Keys
	if keys.Activity == "" {
		keys = eventlog.DefaultKeys()
	}
	release := func(*model.Record) {}
	if rel, ok := p.(releaser); ok {
		release = rel.Release
	}

	g, gctx := errgroup.WithContext(ctx)
	out := make(chan *model.Record, recordBuffer)
	g.Go(func() error {
		defer close(out)
		return p.Parse(gctx, r, out)
	})

	byCase := make(map[string]*eventlog.Trace)
	var traces []*eventlog.Trace
	g.Go(func() error {
		for rec := range out {
			caseID := string(rec.CaseID)
			ev, err := recordEvent(rec, keys)
			release(rec)
			if err != nil {
				return err
			}
			tr, ok := byCase[caseID]
			if !ok {
				tr = &eventlog.Trace{Attributes: eventlog.Attributes{keys.CaseID: caseID}}
				byCase[caseID] = tr
				traces = append(traces, tr)
			}
			tr.Events = append(tr.Events, ev)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(traces, func(i, j int) bool {
		return traces[i].CaseID(keys.CaseID) < traces[j].CaseID(keys.CaseID)
	})
	l := eventlog.New()
	l.Traces = traces
	eventlog.Normalize(l, keys, cfg.Logger)
	if err := eventlog.Validate(l, keys); err != nil {
		return nil, err
	}
	return l, nil
}

func recordEvent(rec *model.Record, keys eventlog.Keys) (eventlog.Event, error) {
	if len(rec.CaseID) == 0 {
		return eventlog.Event{}, errors.New(errors.CodeInvalidFormat, "row has no case id").
			WithContext("row", rec.Line)
	}
	if len(rec.Activity) == 0 {
		return eventlog.Event{}, errors.MissingActivity(string(rec.CaseID), rec.Line).
			WithContext("row", rec.Line)
	}
	attrs := make(eventlog.Attributes, len(rec.Attributes)+4)
	for _, a := range rec.Attributes {
		attrs[string(a.Key)] = typedValue(a)
	}
	attrs[keys.Activity] = string(rec.Activity)
	if rec.HasTimestamp {
		attrs[keys.Timestamp] = time.Unix(0, rec.Timestamp).UTC()
	}
	if rec.HasStart && keys.StartTimestamp != "" {
		attrs[keys.StartTimestamp] = time.Unix(0, rec.Start).UTC()
	}
	if len(rec.Resource) > 0 && keys.Resource != "" {
		attrs[keys.Resource] = string(rec.Resource)
	}
	if len(rec.Lifecycle) > 0 && keys.Lifecycle != "" {
		attrs[keys.Lifecycle] = strings.ToLower(string(rec.Lifecycle))
	}
	return eventlog.Event{Attributes: attrs}, nil
}

// typedValue converts an attribute to its declared type, keeping the raw
// string when it does not parse.
func typedValue(a model.Attribute) interface{} {
	switch a.Type {
	case model.AttrTypeInt:
		if v, err := pool.ParseInt64(a.Value); err == nil {
			return v
		}
	case model.AttrTypeFloat:
		if v, err := pool.ParseFloat64(a.Value); err == nil {
			return v
		}
	case model.AttrTypeBool:
		if v, err := pool.ParseBool(a.Value); err == nil {
			return v
		}
	case model.AttrTypeTimestamp:
		if ns, err := pool.ParseTimestampNanosFast(a.Value); err == nil {
			return time.Unix(0, ns).UTC()
		}
	}
	return string(a.Value)
}
