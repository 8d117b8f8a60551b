package clock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWallClock_FixedZone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	instant := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	ts := FromWallClock(instant, loc)

	// 05:30 wall clock reading, folded into the timestamp
	require.Equal(t, time.Date(2024, 3, 1, 5, 30, 0, 0, time.UTC).UnixMilli(), ts.Millis())

	// the same instant seen from another zone yields the same logical value
	other := instant.In(time.FixedZone("PST", -8*3600))
	require.Equal(t, ts, FromWallClock(other, loc))
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Timestamp
	}{
		{"raw number", `1700000000123`, 1700000000123},
		{"float number", `1700000000123.0`, 1700000000123},
		{"numeric string", `"1700000000123"`, 1700000000123},
		{"structured", `{"seconds":1700000000,"nanoseconds":123000000}`, 1700000000123},
		{"structured underscore", `{"_seconds":1700000000,"_nanoseconds":5000000}`, 1700000000005},
		{"null", `null`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tc.in), &ts))
			assert.Equal(t, tc.want, ts)
		})
	}

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`{"foo":1}`), &ts))
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &ts))
}

func TestTimestamp_WholeSecondsSince(t *testing.T) {
	require.Equal(t, int64(1), Timestamp(1999).WholeSecondsSince(0))
	require.Equal(t, int64(-1), Timestamp(0).WholeSecondsSince(500))
	require.Equal(t, int64(1800), Timestamp(1_800_000).WholeSecondsSince(0))
}

func TestOrElse(t *testing.T) {
	require.Equal(t, Timestamp(5), OrElse(nil, 5))
	require.Equal(t, Timestamp(5), OrElse(Timestamp(0).Ptr(), 5))
	require.Equal(t, Timestamp(7), OrElse(Timestamp(7).Ptr(), 5))
}

func TestFake_EveryAndAfterFunc(t *testing.T) {
	f := NewFake(0)
	var ticks []Timestamp
	var once []Timestamp

	every := f.Every(15*time.Second, func() { ticks = append(ticks, f.Now()) })
	f.AfterFunc(20*time.Second, func() { once = append(once, f.Now()) })

	f.Advance(46 * time.Second)

	require.Equal(t, []Timestamp{15000, 30000, 45000}, ticks)
	require.Equal(t, []Timestamp{20000}, once)
	require.Equal(t, Timestamp(46000), f.Now())
	require.Equal(t, 1, f.Pending())

	every.Stop()
	every.Stop()
	require.Zero(t, f.Pending())

	f.Advance(time.Minute)
	require.Len(t, ticks, 3)
}

func TestFake_CallbackMaySchedule(t *testing.T) {
	f := NewFake(0)
	var fired []Timestamp
	f.AfterFunc(time.Second, func() {
		fired = append(fired, f.Now())
		f.AfterFunc(time.Second, func() { fired = append(fired, f.Now()) })
	})

	f.Advance(3 * time.Second)

	require.Equal(t, []Timestamp{1000, 2000}, fired)
}

func TestReal_StopIsIdempotent(t *testing.T) {
	c := NewClock(time.UTC)
	s := c.Every(time.Hour, func() {})
	s.Stop()
	s.Stop()
	a := c.AfterFunc(time.Hour, func() {})
	a.Stop()
	a.Stop()
}
