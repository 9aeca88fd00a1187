package eventlog

import (
	"math"
	"sort"
	"time"

	"github.com/logflow/pmcore/pkg/errors"
)

const weekSeconds = 7 * 24 * 3600

// weekEpoch is a Monday 00:00 UTC; week offsets are measured from it.
var weekEpoch = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)

// Slot is a weekly working interval in seconds after Monday 00:00 UTC.
type Slot struct {
	Start int64
	End   int64
}

// BusinessHours measures durations inside recurring weekly slots.
type BusinessHours struct {
	slots   []Slot
	perWeek float64
}

// DefaultSlots is Monday to Friday, 07:00 to 17:00.
func DefaultSlots() []Slot {
	slots := make([]Slot, 0, 5)
	for d := int64(0); d < 5; d++ {
		slots = append(slots, Slot{Start: d*86400 + 7*3600, End: d*86400 + 17*3600})
	}
	return slots
}

// NewBusinessHours validates and normalizes the slots; overlapping slots are merged.
func NewBusinessHours(slots []Slot) (*BusinessHours, error) {
	if len(slots) == 0 {
		return nil, errors.InvalidParameter("business_hour_slots", slots, "at least one slot required")
	}
	sorted := append([]Slot(nil), slots...)
	for _, s := range sorted {
		if s.Start < 0 || s.End > weekSeconds || s.Start >= s.End {
			return nil, errors.InvalidParameter("business_hour_slots", s, "slot must satisfy 0 <= start < end <= 604800")
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	bh := &BusinessHours{}
	for _, s := range sorted {
		if n := len(bh.slots); n > 0 && s.Start <= bh.slots[n-1].End {
			if s.End > bh.slots[n-1].End {
				bh.slots[n-1].End = s.End
			}
			continue
		}
		bh.slots = append(bh.slots, s)
	}
	for _, s := range bh.slots {
		bh.perWeek += float64(s.End - s.Start)
	}
	return bh, nil
}

// SlotsFromPairs converts configured [start, end] pairs.
func SlotsFromPairs(pairs [][2]int64) []Slot {
	out := make([]Slot, len(pairs))
	for i, p := range pairs {
		out[i] = Slot{Start: p[0], End: p[1]}
	}
	return out
}

// Slots returns the normalized slots.
func (b *BusinessHours) Slots() []Slot {
	return append([]Slot(nil), b.slots...)
}

// worked returns the working seconds elapsed between weekEpoch and t.
func (b *BusinessHours) worked(t time.Time) float64 {
	s := t.Sub(weekEpoch).Seconds()
	weeks := math.Floor(s / weekSeconds)
	rem := s - weeks*weekSeconds
	total := weeks * b.perWeek
	for _, sl := range b.slots {
		if rem <= float64(sl.Start) {
			break
		}
		total += math.Min(rem, float64(sl.End)) - float64(sl.Start)
	}
	return total
}

// Duration returns the working seconds between from and to; it is zero when
// to is not after from.
func (b *BusinessHours) Duration(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	d := b.worked(to) - b.worked(from)
	if d < 0 {
		return 0
	}
	return d
}

// wallClock measures plain elapsed seconds.
func wallClock(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Seconds()
}
