package eventlog

import (
	"time"

	"github.com/spf13/cast"
)

// Standard XES attribute keys.
const (
	KeyActivity       = "concept:name"
	KeyTimestamp      = "time:timestamp"
	KeyStartTimestamp = "start_timestamp"
	KeyLifecycle      = "lifecycle:transition"
	KeyResource       = "org:resource"
	KeyCaseID         = "concept:name"
)

// Keys written by performance enrichment. Durations are seconds.
const (
	KeyLeadTime    = "pm:lead_time"
	KeyCycleTime   = "pm:cycle_time"
	KeyWastedTime  = "pm:wasted_time"
	KeyEventWasted = "pm:event_wasted_time"
)

// Lifecycle transition values understood by the interval conversion.
const (
	LifecycleStart    = "start"
	LifecycleComplete = "complete"
)

// Attributes maps attribute names to values. Values are one of string,
// int64, float64, bool, time.Time, a nested Attributes map or a []interface{}
// list; other scalar types are coerced on read.
type Attributes map[string]interface{}

// String returns the attribute coerced to a string.
func (a Attributes) String(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// Float returns the attribute coerced to a float64.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the attribute coerced to an int64.
func (a Attributes) Int(key string) (int64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Bool returns the attribute coerced to a bool.
func (a Attributes) Bool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Time returns the attribute coerced to a timestamp. Strings must carry an
// explicit offset or be parseable by cast.
func (a Attributes) Time(key string) (time.Time, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	if t, ok := v.(time.Time); ok {
		return t, !t.IsZero()
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a deep copy of the attribute map, including nested maps and lists.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case Attributes:
		return x.Clone()
	case map[string]interface{}:
		return Attributes(x).Clone()
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}
