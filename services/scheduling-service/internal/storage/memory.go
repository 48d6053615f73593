package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// MemoryRepository keeps appointments in process memory, in insertion order.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]model.Appointment
	now   func() time.Time
}

func NewMemoryRepository(seed ...model.Appointment) *MemoryRepository {
	r := &MemoryRepository{
		byID: make(map[string]model.Appointment, len(seed)),
		now:  time.Now,
	}
	for _, a := range seed {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Status == "" {
			a.Status = model.StatusScheduled
		}
		if _, ok := r.byID[a.ID]; !ok {
			r.order = append(r.order, a.ID)
		}
		r.byID[a.ID] = a
	}
	return r
}

func (r *MemoryRepository) List(_ context.Context) ([]model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(), nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepository) Book(_ context.Context, appt model.Appointment, guard GuardFunc) (model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if _, exists := r.byID[appt.ID]; exists {
		return model.Appointment{}, ErrDuplicateID
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	if guard != nil {
		if err := guard(r.snapshot(), appt); err != nil {
			return model.Appointment{}, err
		}
	}
	now := r.now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.order = append(r.order, appt.ID)
	r.byID[appt.ID] = appt
	return appt, nil
}

func (r *MemoryRepository) Reschedule(_ context.Context, id string, start time.Time, guard GuardFunc) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, ok := r.byID[id]
	if !ok {
		return Change{}, ErrNotFound
	}
	if !before.Status.Blocks() || before.Status == model.StatusCompleted {
		return Change{}, ErrInvalidTransition
	}
	appt := before
	appt.Date = start
	if guard != nil {
		if err := guard(r.snapshot(), appt); err != nil {
			return Change{}, err
		}
	}
	appt.UpdatedAt = r.now().UTC()
	r.byID[id] = appt
	return Change{Before: before, After: appt}, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id string, status model.Status) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before, ok := r.byID[id]
	if !ok {
		return Change{}, ErrNotFound
	}
	if !before.Status.CanTransition(status) {
		return Change{}, ErrInvalidTransition
	}
	if before.Status == status {
		return Change{Before: before, After: before}, nil
	}
	appt := before
	appt.Status = status
	appt.UpdatedAt = r.now().UTC()
	r.byID[id] = appt
	return Change{Before: before, After: appt}, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return appt, nil
}

// snapshot must be called with r.mu held.
func (r *MemoryRepository) snapshot() []model.Appointment {
	out := make([]model.Appointment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
