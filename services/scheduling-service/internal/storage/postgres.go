package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

const appointmentColumns = `id::text, patient_name, patient_phone, doctor, start_time, appointment_type, status, notes, created_at, updated_at`

// PostgresRepository serializes writes per doctor with a transaction-scoped advisory lock,
// so a guard and the write it protects observe the same set of the doctor's appointments.
type PostgresRepository struct {
	pool *db.Pool
}

func NewPostgresRepository(pool *db.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) List(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	return appt, notFound(err)
}

func (r *PostgresRepository) Book(ctx context.Context, appt model.Appointment, guard GuardFunc) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.runGuard(ctx, tx, appt, guard); err != nil {
		return model.Appointment{}, err
	}

	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_name, patient_phone, doctor, start_time, appointment_type, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientName, appt.PatientPhone, appt.Doctor, appt.Date, appt.Type, string(appt.Status), appt.Notes))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Appointment{}, ErrDuplicateID
		}
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id string, start time.Time, guard GuardFunc) (Change, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Change{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Change{}, err
	}
	if !before.Status.Blocks() || before.Status == model.StatusCompleted {
		return Change{}, ErrInvalidTransition
	}
	appt := before
	appt.Date = start
	if err := r.runGuard(ctx, tx, appt, guard); err != nil {
		return Change{}, err
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, start))
	if err != nil {
		return Change{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Change{}, err
	}
	return Change{Before: before, After: updated}, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status model.Status) (Change, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Change{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Change{}, err
	}
	if !before.Status.CanTransition(status) {
		return Change{}, ErrInvalidTransition
	}
	if before.Status == status {
		return Change{Before: before, After: before}, nil
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status)))
	if err != nil {
		return Change{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Change{}, err
	}
	return Change{Before: before, After: updated}, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		RETURNING `+appointmentColumns, id))
	return appt, notFound(err)
}

// runGuard takes the doctor's advisory lock and hands the guard the doctor's blocking
// appointments. The lock is released when tx ends.
func (r *PostgresRepository) runGuard(ctx context.Context, tx pgx.Tx, appt model.Appointment, guard GuardFunc) error {
	if guard == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appt.Doctor); err != nil {
		return fmt.Errorf("lock doctor schedule: %w", err)
	}
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor = $1
			AND status <> 'cancelled'
			AND start_time > $2
			AND start_time < $3
		ORDER BY created_at ASC, id ASC
	`, appt.Doctor, appt.Date.Add(-24*time.Hour), appt.Date.Add(24*time.Hour))
	if err != nil {
		return err
	}
	snapshot, err := collect(rows)
	if err != nil {
		return err
	}
	return guard(snapshot, appt)
}

func getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	return appt, notFound(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.PatientName,
		&appt.PatientPhone,
		&appt.Doctor,
		&appt.Date,
		&appt.Type,
		&status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// validID filters ids the uuid column would reject with a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
