package timetable

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/nickaq/tg-bot-schedule/internal/models"
)

var (
	datePattern = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)
	timePattern = regexp.MustCompile(`\d{2}:\d{2}(:\d{2})?`)
)

// ParseCSV reads a timetable export. Expected columns: subject, start date
// (dd.mm.yyyy), start time (HH:MM or HH:MM:SS), end date, end time. Rows
// that do not fit the column layout are retried with a regexp scan before
// being dropped, since real exports are messy.
func ParseCSV(r io.Reader, loc *time.Location) ([]models.TimetableSlot, error) {
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	slots := make([]models.TimetableSlot, 0, len(rows))
	for i, row := range rows {
		if i == 0 && looksLikeHeader(row) {
			continue
		}
		if slot, ok := parseRow(row, loc); ok {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func looksLikeHeader(row []string) bool {
	joined := strings.ToLower(strings.Join(row, ","))
	return strings.Contains(joined, "subject") ||
		strings.Contains(joined, "date") ||
		strings.Contains(joined, "тема") ||
		strings.Contains(joined, "дата")
}

func parseRow(row []string, loc *time.Location) (models.TimetableSlot, bool) {
	if len(row) >= 5 {
		subject := clean(row[0])
		date, err1 := parseDate(clean(row[1]), loc)
		start, err2 := parseClock(clean(row[2]))
		end, err3 := parseClock(clean(row[4]))
		if err1 == nil && err2 == nil && err3 == nil {
			return models.TimetableSlot{
				Subject: subject,
				Date:    date,
				Weekday: date.Weekday(),
				Start:   start,
				End:     end,
			}, true
		}
	}

	// fallback: pull date and times out of the raw line
	line := strings.Join(row, ",")
	dates := datePattern.FindAllString(line, -1)
	times := timePattern.FindAllString(line, -1)
	if len(dates) == 0 || len(times) < 2 {
		return models.TimetableSlot{}, false
	}

	date, err := parseDate(dates[0], loc)
	if err != nil {
		return models.TimetableSlot{}, false
	}
	start, err := parseClock(times[0])
	if err != nil {
		return models.TimetableSlot{}, false
	}
	end, err := parseClock(times[1])
	if err != nil {
		return models.TimetableSlot{}, false
	}

	subject := ""
	if len(row) > 0 {
		subject = clean(row[0])
	}
	return models.TimetableSlot{
		Subject: subject,
		Date:    date,
		Weekday: date.Weekday(),
		Start:   start,
		End:     end,
	}, true
}

func clean(field string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(field), `"`))
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("02.01.2006", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func parseClock(value string) (time.Duration, error) {
	layout := "15:04"
	if strings.Count(value, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}
