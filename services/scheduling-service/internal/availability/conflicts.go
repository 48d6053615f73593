package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// Candidate is a proposed booking to be checked against existing appointments.
type Candidate struct {
	Date     time.Time
	Doctor   string
	Duration time.Duration // zero or negative means DefaultDuration
	// ExcludeID skips the appointment with this id, e.g. the one being rescheduled.
	// When empty an appointment passed as both existing and candidate conflicts with itself.
	ExcludeID string
}

type ConflictResult struct {
	HasConflict bool
	Conflicting []model.Appointment
	Message     string
}

// DetectConflicts reports the non-cancelled appointments of the candidate's doctor whose
// window overlaps the candidate's window. existing is not modified.
func DetectConflicts(existing []model.Appointment, c Candidate) ConflictResult {
	d := c.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	want := Window(c.Date, d)

	conflicting := []model.Appointment{}
	for _, a := range existing {
		if !a.Status.Blocks() || a.Doctor != c.Doctor {
			continue
		}
		if c.ExcludeID != "" && a.ID == c.ExcludeID {
			continue
		}
		if Overlaps(want, Window(a.Date, DefaultDuration)) {
			conflicting = append(conflicting, a)
		}
	}

	if len(conflicting) == 0 {
		return ConflictResult{Conflicting: conflicting}
	}
	return ConflictResult{
		HasConflict: true,
		Conflicting: conflicting,
		Message:     conflictMessage(c.Doctor, len(conflicting)),
	}
}

func conflictMessage(doctor string, n int) string {
	if n == 1 {
		return fmt.Sprintf("%s already has 1 appointment overlapping this time", doctor)
	}
	return fmt.Sprintf("%s already has %d appointments overlapping this time", doctor, n)
}

// ConflictError carries a positive ConflictResult through error returns.
type ConflictError struct {
	Result ConflictResult
}

func (e *ConflictError) Error() string {
	return e.Result.Message
}

// Guard returns a write guard for storage: it checks the appointment being written against
// the snapshot, always excluding the appointment's own id so a reschedule never collides
// with its previous slot. Writing a cancelled appointment never conflicts.
func Guard(duration time.Duration) func(snapshot []model.Appointment, appt model.Appointment) error {
	return func(snapshot []model.Appointment, appt model.Appointment) error {
		if !appt.Status.Blocks() {
			return nil
		}
		res := DetectConflicts(snapshot, Candidate{
			Date:      appt.Date,
			Doctor:    appt.Doctor,
			Duration:  duration,
			ExcludeID: appt.ID,
		})
		if res.HasConflict {
			return &ConflictError{Result: res}
		}
		return nil
	}
}
