package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// DailyCapacity is the number of appointments after which a doctor's day counts as full.
const DailyCapacity = 12

type DoctorDay struct {
	Doctor    string
	Available bool
	Booked    int
	Capacity  int
	// BusySlots are start times as HH:MM in the day's location, in input order.
	BusySlots []string
}

// DoctorAvailability is a count-based heuristic: no working hours or breaks are considered.
func DoctorAvailability(existing []model.Appointment, doctor string, day time.Time) DoctorDay {
	busy := []string{}
	for _, a := range doctorDay(existing, doctor, day) {
		busy = append(busy, a.Date.In(day.Location()).Format("15:04"))
	}
	return DoctorDay{
		Doctor:    doctor,
		Available: len(busy) < DailyCapacity,
		Booked:    len(busy),
		Capacity:  DailyCapacity,
		BusySlots: busy,
	}
}

// BusyIntervals returns the occupied windows of doctor on day, for the slot picker.
func BusyIntervals(existing []model.Appointment, doctor string, day time.Time) []Interval {
	var out []Interval
	for _, a := range doctorDay(existing, doctor, day) {
		out = append(out, Window(a.Date, DefaultDuration))
	}
	return out
}

func doctorDay(existing []model.Appointment, doctor string, day time.Time) []model.Appointment {
	var out []model.Appointment
	for _, a := range existing {
		if a.Doctor != doctor || !a.Status.Blocks() {
			continue
		}
		if SameDay(a.Date, day) {
			out = append(out, a)
		}
	}
	return out
}
