package clock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a logical instant: milliseconds since the epoch of the wall-clock
// reading in the configured timezone. Only differences between Timestamps are
// meaningful.
type Timestamp int64

// FromWallClock converts t to the logical timestamp of its reading in loc.
func FromWallClock(t time.Time, loc *time.Location) Timestamp {
	w := t.In(loc)
	shifted := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.UTC)
	return Timestamp(shifted.UnixMilli())
}

// FromSeconds builds a Timestamp from a seconds/nanoseconds pair.
func FromSeconds(sec, nsec int64) Timestamp {
	return Timestamp(sec*1000 + nsec/int64(time.Millisecond))
}

// Millis returns the raw millisecond value.
func (ts Timestamp) Millis() int64 { return int64(ts) }

// Time renders the logical timestamp; the zone is always UTC since the
// timezone shift is already folded in.
func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)).UTC() }

// Add returns ts shifted by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return ts + Timestamp(d.Milliseconds())
}

// Sub returns ts - other.
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return time.Duration(ts-other) * time.Millisecond
}

// Before reports whether ts is earlier than other.
func (ts Timestamp) Before(other Timestamp) bool { return ts < other }

// After reports whether ts is later than other.
func (ts Timestamp) After(other Timestamp) bool { return ts > other }

// IsZero reports whether ts is unset.
func (ts Timestamp) IsZero() bool { return ts == 0 }

// WholeSecondsSince returns floor((ts - from)/1000), which may be negative.
func (ts Timestamp) WholeSecondsSince(from Timestamp) int64 {
	d := int64(ts - from)
	if d < 0 && d%1000 != 0 {
		return d/1000 - 1
	}
	return d / 1000
}

func (ts Timestamp) String() string {
	return ts.Time().Format("2006-01-02 15:04:05.000")
}

// MarshalJSON always writes the raw millisecond number.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(ts), 10)), nil
}

// structured is the legacy document shape, written either with or without
// leading underscores depending on the SDK that produced it.
type structured struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// UnmarshalJSON accepts a raw millisecond number (integer or float), a numeric
// string, or a structured {seconds, nanoseconds} object.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*ts = 0
		return nil
	}

	switch data[0] {
	case '{':
		var s structured
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("clock: invalid structured timestamp: %w", err)
		}
		switch {
		case s.Seconds != nil:
			*ts = FromSeconds(*s.Seconds, s.Nanoseconds)
		case s.USeconds != nil:
			*ts = FromSeconds(*s.USeconds, s.UNanoseconds)
		default:
			return fmt.Errorf("clock: structured timestamp without seconds: %s", data)
		}
		return nil
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		return ts.parseNumber(raw)
	default:
		return ts.parseNumber(string(data))
	}
}

func (ts *Timestamp) parseNumber(raw string) error {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*ts = Timestamp(v)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("clock: invalid timestamp %q", raw)
	}
	*ts = Timestamp(int64(f))
	return nil
}

// Ptr returns a pointer to a copy of ts.
func (ts Timestamp) Ptr() *Timestamp { return &ts }

// OrElse dereferences p, falling back to def when p is nil or zero.
func OrElse(p *Timestamp, def Timestamp) Timestamp {
	if p == nil || p.IsZero() {
		return def
	}
	return *p
}
