package petri

import (
	"sort"
	"strconv"
	"strings"
)

// Marking is a multiset of tokens over places. Places absent from the map
// hold no tokens; zero counts are never stored.
type Marking map[PlaceID]int

// NewMarking builds a marking putting one token on each given place.
func NewMarking(places ...PlaceID) Marking {
	m := make(Marking, len(places))
	for _, p := range places {
		m[p]++
	}
	return m
}

// Clone returns a copy of the marking.
func (m Marking) Clone() Marking {
	out := make(Marking, len(m))
	for p, c := range m {
		out[p] = c
	}
	return out
}

// Add changes the token count of p by delta, dropping the entry at zero.
func (m Marking) Add(p PlaceID, delta int) {
	c := m[p] + delta
	if c <= 0 {
		delete(m, p)
		return
	}
	m[p] = c
}

// Total returns the number of tokens.
func (m Marking) Total() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Equal reports whether both markings hold the same tokens.
func (m Marking) Equal(o Marking) bool {
	if len(m) != len(o) {
		return false
	}
	for p, c := range m {
		if o[p] != c {
			return false
		}
	}
	return true
}

// Covers reports whether m holds at least the tokens of o on every place.
func (m Marking) Covers(o Marking) bool {
	for p, c := range o {
		if m[p] < c {
			return false
		}
	}
	return true
}

// places returns the marked places in ascending order.
func (m Marking) places() []PlaceID {
	ps := make([]PlaceID, 0, len(m))
	for p := range m {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return ps
}

// Key returns the canonical encoding of the marking: place handles in
// ascending order with their counts. Equal markings have equal keys.
func (m Marking) Key() string {
	buf := make([]byte, 0, 8*len(m))
	for i, p := range m.places() {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(p), 10)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(m[p]), 10)
	}
	return string(buf)
}

// Format renders the marking with place names, e.g. [source:1 p3:2].
func (m Marking) Format(n *Net) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range m.places() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(n.Place(p).Name)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(m[p]))
	}
	sb.WriteByte(']')
	return sb.String()
}
