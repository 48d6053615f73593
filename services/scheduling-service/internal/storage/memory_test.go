package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

var tenAM = time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)

func TestMemoryRepository_BookAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(model.Appointment{ID: "seed", Doctor: "Dr. Smith", Date: tenAM})

	created, err := repo.Book(ctx, model.Appointment{PatientName: "Ann", Doctor: "Dr. Jones", Date: tenAM}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusScheduled, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "seed", all[0].ID)
	assert.Equal(t, created.ID, all[1].ID)

	_, err = repo.Book(ctx, model.Appointment{ID: "seed", Doctor: "Dr. Smith", Date: tenAM}, nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestMemoryRepository_GuardRejects(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(model.Appointment{ID: "a1", Doctor: "Dr. Smith", Date: tenAM})

	_, err := repo.Book(ctx, model.Appointment{Doctor: "Dr. Smith", Date: tenAM.Add(15 * time.Minute)}, availability.Guard(0))
	var conflict *availability.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Len(t, conflict.Result.Conflicting, 1)

	all, _ := repo.List(ctx)
	assert.Len(t, all, 1, "rejected booking must not be stored")

	// A cancelled record occupies no time.
	_, err = repo.Book(ctx, model.Appointment{Doctor: "Dr. Smith", Date: tenAM, Status: model.StatusCancelled}, availability.Guard(0))
	require.NoError(t, err)

	// A nil guard is an override.
	_, err = repo.Book(ctx, model.Appointment{Doctor: "Dr. Smith", Date: tenAM.Add(15 * time.Minute)}, nil)
	require.NoError(t, err)
}

func TestMemoryRepository_ConcurrentBookingsDoNotDoubleBook(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	var wg sync.WaitGroup
	var mu sync.Mutex
	booked := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Book(ctx, model.Appointment{Doctor: "Dr. Smith", Date: tenAM}, availability.Guard(0))
			if err == nil {
				mu.Lock()
				booked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, booked)
}

func TestMemoryRepository_Reschedule(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(
		model.Appointment{ID: "a1", Doctor: "Dr. Smith", Date: tenAM},
		model.Appointment{ID: "a2", Doctor: "Dr. Smith", Date: tenAM.Add(time.Hour)},
	)

	moved, err := repo.Reschedule(ctx, "a1", tenAM.Add(10*time.Minute), availability.Guard(0))
	require.NoError(t, err)
	assert.True(t, moved.Before.Date.Equal(tenAM))
	assert.True(t, moved.After.Date.Equal(tenAM.Add(10*time.Minute)))

	_, err = repo.Reschedule(ctx, "a1", tenAM.Add(50*time.Minute), availability.Guard(0))
	var conflict *availability.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a2", conflict.Result.Conflicting[0].ID)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(tenAM.Add(10*time.Minute)), "failed reschedule must not move the appointment")

	_, err = repo.Reschedule(ctx, "missing", tenAM, nil)
	assert.True(t, IsNotFound(err))
}

func TestMemoryRepository_SetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(model.Appointment{ID: "a1", Doctor: "Dr. Smith", Date: tenAM})

	got, err := repo.SetStatus(ctx, "a1", model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Before.Status)
	assert.Equal(t, model.StatusCancelled, got.After.Status)

	// Cancelling twice is a no-op.
	again, err := repo.SetStatus(ctx, "a1", model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, again.Before, again.After)

	_, err = repo.SetStatus(ctx, "a1", model.StatusConfirmed)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = repo.Reschedule(ctx, "a1", tenAM.Add(time.Hour), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(
		model.Appointment{ID: "a1", Doctor: "Dr. Smith", Date: tenAM},
		model.Appointment{ID: "a2", Doctor: "Dr. Smith", Date: tenAM},
	)
	removed, err := repo.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", removed.ID)
	_, err = repo.Delete(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	all, _ := repo.List(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "a2", all[0].ID)
}

func TestMemoryRepository_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(model.Appointment{ID: "a1", Doctor: "Dr. Smith", Date: tenAM})
	all, _ := repo.List(ctx)
	all[0].Doctor = "changed"

	got, _ := repo.Get(ctx, "a1")
	assert.Equal(t, "Dr. Smith", got.Doctor)
}
