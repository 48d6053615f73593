package availability

import (
	"fmt"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

var clinic = time.FixedZone("clinic", 3*60*60)

func TestForDay_ComponentMatch(t *testing.T) {
	all := []model.Appointment{
		{ID: "late", Date: time.Date(2025, 1, 15, 23, 59, 0, 0, clinic), Status: model.StatusScheduled},
		{ID: "next", Date: time.Date(2025, 1, 16, 0, 1, 0, 0, clinic), Status: model.StatusScheduled},
		{ID: "early", Date: time.Date(2025, 1, 15, 0, 0, 0, 0, clinic), Status: model.StatusCancelled},
	}
	got := ForDay(all, time.Date(2025, 1, 15, 0, 0, 0, 0, clinic))
	if len(got) != 2 || got[0].ID != "late" || got[1].ID != "early" {
		t.Fatalf("expected [late early], got %v", ids(got))
	}
}

func TestForDay_UsesDayLocation(t *testing.T) {
	// 22:30 UTC on the 15th is 01:30 on the 16th in the clinic's zone.
	all := []model.Appointment{{ID: "utc", Date: time.Date(2025, 1, 15, 22, 30, 0, 0, time.UTC)}}
	if got := ForDay(all, time.Date(2025, 1, 16, 0, 0, 0, 0, clinic)); len(got) != 1 {
		t.Fatalf("expected appointment on the 16th in clinic time, got %v", ids(got))
	}
	if got := ForDay(all, time.Date(2025, 1, 15, 0, 0, 0, 0, clinic)); len(got) != 0 {
		t.Fatalf("expected nothing on the 15th in clinic time, got %v", ids(got))
	}
}

func TestForDayMatching(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, clinic)
	all := []model.Appointment{
		{ID: "1", PatientName: "Maria Lopez", PatientPhone: "+1 555 0100", Type: "Consultation", Date: day.Add(9 * time.Hour)},
		{ID: "2", PatientName: "John Park", PatientPhone: "+1 555 0199", Type: "Follow-up", Date: day.Add(10 * time.Hour)},
		{ID: "3", PatientName: "Maria Chen", Type: "Cleaning", Date: day.AddDate(0, 0, 1)},
	}

	cases := []struct {
		query string
		want  string
	}{
		{"maria", "[1]"},
		{"0199", "[2]"},
		{"FOLLOW", "[2]"},
		{"", "[1 2]"},
		{"cleaning", "[]"},
	}
	for _, tc := range cases {
		if got := fmt.Sprint(ids(ForDayMatching(all, day, tc.query))); got != tc.want {
			t.Fatalf("query %q: expected %s, got %s", tc.query, tc.want, got)
		}
	}
}

func TestMonthGrid(t *testing.T) {
	// December 2025 starts on a Monday, so the grid opens on Sunday Nov 30.
	month := time.Date(2025, 12, 10, 0, 0, 0, 0, clinic)
	all := []model.Appointment{
		{ID: "x", Date: time.Date(2025, 12, 15, 10, 0, 0, 0, clinic)},
		{ID: "y", Date: time.Date(2025, 11, 30, 8, 0, 0, 0, clinic)},
	}
	cells := MonthGrid(all, month)
	if len(cells) != CalendarCells {
		t.Fatalf("expected %d cells, got %d", CalendarCells, len(cells))
	}
	if cells[0].Day.Day() != 30 || cells[0].InMonth || len(cells[0].Appointments) != 1 {
		t.Fatalf("unexpected first cell %+v", cells[0])
	}
	if cells[0].Day.Weekday() != time.Sunday {
		t.Fatalf("grid must start on Sunday, got %s", cells[0].Day.Weekday())
	}
	c := cells[15]
	if c.Day.Day() != 15 || !c.InMonth || len(c.Appointments) != 1 || c.Appointments[0].ID != "x" {
		t.Fatalf("unexpected cell for Dec 15: %+v", c)
	}
	last := cells[CalendarCells-1]
	if last.InMonth || last.Day.Month() != time.January {
		t.Fatalf("expected trailing January cell, got %s", last.Day)
	}
}

func ids(appts []model.Appointment) []string {
	out := []string{}
	for _, a := range appts {
		out = append(out, a.ID)
	}
	return out
}
