package availability

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// CalendarCells is the size of a month grid: six weeks of seven days.
const CalendarCells = 42

// SameDay compares year, month and day of t and day, both read in day's location.
func SameDay(t, day time.Time) bool {
	ty, tm, td := t.In(day.Location()).Date()
	dy, dm, dd := day.Date()
	return ty == dy && tm == dm && td == dd
}

// ForDay returns every appointment starting on day, cancelled ones included, in input order.
func ForDay(all []model.Appointment, day time.Time) []model.Appointment {
	out := []model.Appointment{}
	for _, a := range all {
		if SameDay(a.Date, day) {
			out = append(out, a)
		}
	}
	return out
}

// ForDayMatching is ForDay restricted to appointments whose patient name, phone or type
// contains query, case-insensitively. An empty query matches everything.
func ForDayMatching(all []model.Appointment, day time.Time, query string) []model.Appointment {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ForDay(all, day)
	}
	out := []model.Appointment{}
	for _, a := range all {
		if !matches(a, q) {
			continue
		}
		if SameDay(a.Date, day) {
			out = append(out, a)
		}
	}
	return out
}

func matches(a model.Appointment, q string) bool {
	return strings.Contains(strings.ToLower(a.PatientName), q) ||
		strings.Contains(strings.ToLower(a.PatientPhone), q) ||
		strings.Contains(strings.ToLower(a.Type), q)
}

type DayCell struct {
	Day          time.Time
	InMonth      bool
	Appointments []model.Appointment
}

// MonthGrid lays out the month containing month as CalendarCells days starting on the
// Sunday on or before the 1st, each filled with ForDay.
func MonthGrid(all []model.Appointment, month time.Time) []DayCell {
	loc := month.Location()
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	lead := int(first.Weekday())

	cells := make([]DayCell, 0, CalendarCells)
	for i := 0; i < CalendarCells; i++ {
		day := time.Date(first.Year(), first.Month(), 1-lead+i, 0, 0, 0, 0, loc)
		cells = append(cells, DayCell{
			Day:          day,
			InMonth:      day.Month() == first.Month(),
			Appointments: ForDay(all, day),
		})
	}
	return cells
}
