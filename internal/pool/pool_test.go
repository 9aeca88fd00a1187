package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseTimestampNanosFast(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-01T10:20:30Z", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01 10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01T10:20:30.25Z", time.Date(2024, 3, 1, 10, 20, 30, 250000000, time.UTC)},
		{"2024-03-01T10:20:30+02:00", time.Date(2024, 3, 1, 8, 20, 30, 0, time.UTC)},
		{"2024-03-01T10:20:30-0130", time.Date(2024, 3, 1, 11, 50, 30, 0, time.UTC)},
		{"2024/03/01 10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"45352.5", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestampNanosFast([]byte(tt.in))
		if err != nil {
			t.Errorf("ParseTimestampNanosFast(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want.UnixNano() {
			t.Errorf("ParseTimestampNanosFast(%q) = %v, want %v", tt.in, time.Unix(0, got).UTC(), tt.want)
		}
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2024-13-01", "2024-03-01T10:20", "2024-03-01T10:20:30 CET", "2024-03-01T10:20:30+2"} {
		if _, err := ParseTimestampNanosFast([]byte(in)); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("ParseTimestampNanosFast(%q) error = %v, want ErrInvalidTimestamp", in, err)
		}
	}
}

func TestParseTimestampLayout(t *testing.T) {
	got, err := ParseTimestamp([]byte("01.03.2024 10:20"), "02.01.2006 15:04")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 3, 1, 10, 20, 0, 0, time.UTC).UnixNano(); got != want {
		t.Errorf("ParseTimestamp() = %d, want %d", got, want)
	}
	// the layout is a hint; ISO values still parse
	if _, err := ParseTimestamp([]byte("2024-03-01T10:20:30Z"), "02.01.2006 15:04"); err != nil {
		t.Errorf("ParseTimestamp() fallback error: %v", err)
	}
}

func TestRecordPool(t *testing.T) {
	p := NewRecordPool()
	r := p.Get()
	r.CaseID = append(r.CaseID, "c1"...)
	r.AddAttribute([]byte("k"), []byte("v"), 0)
	p.Put(r)
	r = p.Get()
	if len(r.CaseID) != 0 || len(r.Attributes) != 0 {
		t.Errorf("pooled record not reset: %+v", r)
	}
}

func TestForEach(t *testing.T) {
	for _, workers := range []int{1, 4} {
		out := make([]int, 100)
		err := ForEach(context.Background(), len(out), workers, func(_ context.Context, i int) error {
			out[i] = i * i
			return nil
		})
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		for i, v := range out {
			if v != i*i {
				t.Fatalf("workers=%d: out[%d] = %d, want %d", workers, i, v, i*i)
			}
		}
	}
}

func TestForEachError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	err := ForEach(context.Background(), 10, 1, func(_ context.Context, i int) error {
		calls.Add(1)
		if i == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("ForEach() error = %v, want boom", err)
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ForEach(ctx, 5, 3, func(context.Context, int) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled ForEach() error = %v", err)
	}
}
