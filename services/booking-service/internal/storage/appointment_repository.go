package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/salud-online/sos/libs/db"
	"github.com/salud-online/sos/libs/schedule"
	"github.com/salud-online/sos/services/booking-service/internal/model"
)

const appointmentColumns = `id, patient_id, provider_id, date, time, duration_minutes, COALESCE(reason, ''), status, created_at, updated_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockProviderDay serializes concurrent bookings for the same provider and
// day for the duration of the transaction. The unique index on
// (provider_id, date, time) remains as the backstop for identical starts.
func (r *AppointmentRepository) LockProviderDay(ctx context.Context, tx pgx.Tx, providerID string, date time.Time) error {
	_, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))
	`, providerID, date.Format("2006-01-02"))
	return err
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, provider_id, date, time, duration_minutes, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, appt.PatientID, appt.ProviderID, appt.Date, appt.Time, appt.DurationMinutes, appt.Reason, appt.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) ListAll(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY date DESC, time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByProvider(ctx context.Context, providerID string, statuses []string) ([]model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1
	`
	args := []any{providerID}
	if len(statuses) > 0 {
		query += ` AND status = ANY($2)`
		args = append(args, statuses)
	}
	query += ` ORDER BY date ASC, time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// DayBookings returns the slot engine's view of a provider's day:
// start label and duration of every non-cancelled appointment. Cancelled
// appointments release their slots.
func (r *AppointmentRepository) DayBookings(ctx context.Context, providerID string, date time.Time) ([]schedule.Booking, error) {
	return dayBookings(ctx, r.pool, providerID, date)
}

// DayBookingsTx is the in-transaction variant used while holding the
// provider-day advisory lock.
func (r *AppointmentRepository) DayBookingsTx(ctx context.Context, tx pgx.Tx, providerID string, date time.Time) ([]schedule.Booking, error) {
	return dayBookings(ctx, tx, providerID, date)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func dayBookings(ctx context.Context, q queryer, providerID string, date time.Time) ([]schedule.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT time, duration_minutes
		FROM appointments
		WHERE provider_id = $1
			AND date = $2
			AND status <> 'cancelado'
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var booked []schedule.Booking
	for rows.Next() {
		var b schedule.Booking
		if err := rows.Scan(&b.Time, &b.DurationMinutes); err != nil {
			return nil, err
		}
		booked = append(booked, b)
	}
	return booked, rows.Err()
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id, status string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)
	return scanAppointment(row)
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.ProviderID,
		&appt.Date,
		&appt.Time,
		&appt.DurationMinutes,
		&appt.Reason,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(
			&appt.ID,
			&appt.PatientID,
			&appt.ProviderID,
			&appt.Date,
			&appt.Time,
			&appt.DurationMinutes,
			&appt.Reason,
			&appt.Status,
			&appt.CreatedAt,
			&appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
