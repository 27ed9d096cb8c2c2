package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want Clock
		ok   bool
	}{
		{"09:00", 540, true},
		{"9:30", 570, true},
		{" 13:05 ", 785, true},
		{"00:00", 0, true},
		{"24:00", 1440, true},
		{"24:01", 0, false},
		{"12:60", 0, false},
		{"-1:00", 0, false},
		{"noon", 0, false},
		{"", 0, false},
		{"10:00:00", 0, false},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if !tt.ok {
			assert.Error(t, err, "input: %q", tt.in)
			continue
		}
		require.NoError(t, err, "input: %q", tt.in)
		assert.Equal(t, tt.want, got, "input: %q", tt.in)
	}
}

func TestClock_String(t *testing.T) {
	assert.Equal(t, "09:05", Clock(545).String())
	assert.Equal(t, "24:00", Clock(1440).String())
}

func TestClock_On(t *testing.T) {
	date := time.Date(2026, 3, 10, 17, 45, 0, 0, time.UTC)
	got := MustClock("09:30").On(date)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), got)
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		in   string
		want Slot
		ok   bool
	}{
		{"09:00 - 12:00", BoundedSlot(540, 720), true},
		{"09:00-18:00", BoundedSlot(540, 1080), true},
		{"10:00 – 11:30", BoundedSlot(600, 690), true},
		{"Full Day", FullDaySlot(), true},
		{"full day", FullDaySlot(), true},
		{"12:00 - 09:00", Slot{}, false},
		{"10:00 - 10:00", Slot{}, false},
		{"morning", Slot{}, false},
		{"", Slot{}, false},
		{"09:00 - 10:00 - 11:00", Slot{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseSlot(tt.in)
		assert.Equal(t, tt.ok, ok, "input: %q", tt.in)
		assert.Equal(t, tt.want, got, "input: %q", tt.in)
	}
}

func TestSlot_StringRoundTrip(t *testing.T) {
	for _, s := range []Slot{FullDaySlot(), BoundedSlot(MustClock("08:15"), MustClock("17:45"))} {
		parsed, ok := ParseSlot(s.String())
		require.True(t, ok)
		assert.Equal(t, s, parsed)
	}
}

func TestSlot_Valid(t *testing.T) {
	assert.True(t, FullDaySlot().Valid())
	assert.True(t, BoundedSlot(0, 1440).Valid())
	assert.False(t, Slot{}.Valid())
	assert.False(t, BoundedSlot(600, 540).Valid())
	assert.False(t, BoundedSlot(600, 1500).Valid())
}

func TestSlot_Minutes(t *testing.T) {
	assert.Equal(t, 480, FullDaySlot().Minutes())
	assert.Equal(t, 150, BoundedSlot(600, 750).Minutes())
	assert.Equal(t, 0, Slot{}.Minutes())
}

func TestSlot_Overlaps(t *testing.T) {
	existing := BoundedSlot(MustClock("10:00"), MustClock("14:00"))

	// No overlap - before
	assert.False(t, existing.Overlaps(BoundedSlot(MustClock("08:00"), MustClock("10:00"))))

	// No overlap - after
	assert.False(t, existing.Overlaps(BoundedSlot(MustClock("14:00"), MustClock("16:00"))))

	// Overlap - starts during
	assert.True(t, existing.Overlaps(BoundedSlot(MustClock("12:00"), MustClock("16:00"))))

	// Overlap - contained
	assert.True(t, existing.Overlaps(BoundedSlot(MustClock("11:00"), MustClock("13:00"))))

	assert.True(t, existing.Overlaps(FullDaySlot()))
	assert.False(t, existing.Overlaps(Slot{}))
}
