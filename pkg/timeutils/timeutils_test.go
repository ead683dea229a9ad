package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("1-6")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}, days)

	days, err = ParseWeekdays("5, 1,1")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, days)
	assert.Equal(t, "1,5", FormatWeekdays(days))

	_, err = ParseWeekdays("7")
	assert.Error(t, err)
	_, err = ParseWeekdays("")
	assert.Error(t, err)
	_, err = ParseWeekdays("5-2")
	assert.Error(t, err)
}

func TestNextWindowOpening(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

	// Saturday 19:00 -> Monday 09:00
	sat := time.Date(2026, 10, 17, 19, 0, 0, 0, loc)
	next, err := NextWindowOpening(sat, weekdays, 9, 18, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, loc), next)

	// Monday 07:30 -> same day 09:00
	early := time.Date(2026, 10, 19, 7, 30, 0, 0, loc)
	next, err = NextWindowOpening(early, weekdays, 9, 18, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, loc), next)

	// Inside the window
	inside := time.Date(2026, 10, 19, 10, 0, 0, 0, loc)
	next, err = NextWindowOpening(inside, weekdays, 9, 18, loc)
	require.NoError(t, err)
	assert.Equal(t, inside, next)
}
