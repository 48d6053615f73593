package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("appointment status transition not allowed")
	ErrDuplicateID       = errors.New("appointment id already exists")
)

// GuardFunc inspects the current snapshot before appt is written and may veto the write by
// returning an error, which the repository returns unchanged. It runs inside the same
// critical section as the write. A nil guard accepts every write.
type GuardFunc func(snapshot []model.Appointment, appt model.Appointment) error

// Change is an update as seen inside the write: Before is the stored record the write
// replaced, After is what was stored.
type Change struct {
	Before model.Appointment
	After  model.Appointment
}

type Repository interface {
	List(ctx context.Context) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	Book(ctx context.Context, appt model.Appointment, guard GuardFunc) (model.Appointment, error)
	Reschedule(ctx context.Context, id string, start time.Time, guard GuardFunc) (Change, error)
	SetStatus(ctx context.Context, id string, status model.Status) (Change, error)
	// Delete returns the removed appointment.
	Delete(ctx context.Context, id string) (model.Appointment, error)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
