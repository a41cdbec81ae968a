package timetable

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		`Subject,Start Date,Start Time,End Date,End Time`,
		`"Вища математика",05.01.2026,09:30:00,05.01.2026,11:05:00`,
		`"Фізика",05.01.2026,11:15,05.01.2026,12:50`,
		`garbage row`,
		``,
	}, "\n")

	slots, err := ParseCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)
	require.Len(t, slots, 2)

	assert.Equal(t, "Вища математика", slots[0].Subject)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), slots[0].Date)
	assert.Equal(t, 9*time.Hour+30*time.Minute, slots[0].Start)
	assert.Equal(t, 11*time.Hour+5*time.Minute, slots[0].End)
	assert.Equal(t, time.Monday, slots[0].Weekday)

	assert.Equal(t, "Фізика", slots[1].Subject)
	assert.Equal(t, 11*time.Hour+15*time.Minute, slots[1].Start)
}

func TestParseCSVRegexpFallback(t *testing.T) {
	// extra columns shuffle the layout; the fallback still pulls out the
	// first date and the first two times
	input := `"Програмування",extra,05.01.2026 09:30:00 - 11:05:00,note` + "\n"

	slots, err := ParseCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	assert.Equal(t, "Програмування", slots[0].Subject)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), slots[0].Date)
	assert.Equal(t, 9*time.Hour+30*time.Minute, slots[0].Start)
	assert.Equal(t, 11*time.Hour+5*time.Minute, slots[0].End)
}

func TestParseCSVEmpty(t *testing.T) {
	slots, err := ParseCSV(strings.NewReader(""), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
