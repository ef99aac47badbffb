package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/salud-online/sos/libs/db"
)

// DefaultEMR seeds a new patient's electronic medical record. Providers
// edit it as free-form markdown.
const DefaultEMR = `# Historia clínica

## Motivo de consulta

## Antecedentes

## Alergias

## Medicación actual

## Evolución
`

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type Patient struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	DocumentID string
	EMR        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Repository) CreatePatient(ctx context.Context, tx pgx.Tx, p *Patient) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.EMR == "" {
		p.EMR = DefaultEMR
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO patients (id, name, email, phone, document_id, emr)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Email, p.Phone, p.DocumentID, p.EMR)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *Repository) GetPatient(ctx context.Context, id string) (Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, COALESCE(phone, ''), COALESCE(document_id, ''), emr, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DocumentID, &p.EMR, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) ListPatients(ctx context.Context, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email, COALESCE(phone, ''), COALESCE(document_id, ''), emr, created_at, updated_at
		FROM patients
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DocumentID, &p.EMR, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpdatePatient(ctx context.Context, p Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET name = $2,
			email = $3,
			phone = $4,
			document_id = $5,
			updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Email, p.Phone, p.DocumentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) UpdateEMR(ctx context.Context, patientID, emr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET emr = $2,
			updated_at = now()
		WHERE id = $1
	`, patientID, emr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeletePatient(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type Provider struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Specialty string
	Shifts    string // weekly schedule JSON document
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Repository) CreateProvider(ctx context.Context, tx pgx.Tx, p *Provider) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO providers (id, name, email, phone, specialty, shifts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Name, p.Email, p.Phone, p.Specialty, p.Shifts)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *Repository) GetProvider(ctx context.Context, id string) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, COALESCE(phone, ''), COALESCE(specialty, ''), shifts, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Shifts, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) ListProviders(ctx context.Context, limit int) ([]Provider, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email, COALESCE(phone, ''), COALESCE(specialty, ''), shifts, created_at, updated_at
		FROM providers
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Shifts, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateProvider(ctx context.Context, p Provider) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers
		SET name = $2,
			email = $3,
			phone = $4,
			specialty = $5,
			shifts = $6,
			updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Email, p.Phone, p.Specialty, p.Shifts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) GetProviderShifts(ctx context.Context, id string) (string, error) {
	var shifts string
	err := r.pool.QueryRow(ctx, `
		SELECT shifts FROM providers WHERE id = $1
	`, id).Scan(&shifts)
	return shifts, err
}

func (r *Repository) DeleteProvider(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type Admin struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

func (r *Repository) CreateAdmin(ctx context.Context, tx pgx.Tx, a *Admin) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO admins (id, name, email)
		VALUES ($1, $2, $3)
	`, a.ID, a.Name, a.Email)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (r *Repository) GetAdmin(ctx context.Context, id string) (Admin, error) {
	var a Admin
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, created_at
		FROM admins
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt)
	return a, err
}

func (r *Repository) ListAdmins(ctx context.Context, limit int) ([]Admin, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email, created_at
		FROM admins
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteAdmin(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordAppointmentEvent keeps a local log of appointment lifecycle
// events consumed from the booking topics. The stats dashboard reads
// from this table instead of calling booking-service.
func (r *Repository) RecordAppointmentEvent(ctx context.Context, appointmentID, patientID, providerID string, date time.Time, status string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_log (appointment_id, patient_id, provider_id, date, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id) DO UPDATE
		SET status = EXCLUDED.status,
			updated_at = now()
	`, appointmentID, patientID, providerID, date, status)
	return err
}

type Stats struct {
	TotalPatients       int
	TotalProviders      int
	TotalAppointments   int
	QuarterAppointments int
	ByStatus            map[string]int
}

func (r *Repository) PlatformStats(ctx context.Context, quarterStart time.Time) (Stats, error) {
	stats := Stats{ByStatus: map[string]int{}}

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM patients),
			(SELECT count(*) FROM providers),
			(SELECT count(*) FROM appointment_log),
			(SELECT count(*) FROM appointment_log WHERE date >= $1)
	`, quarterStart).Scan(&stats.TotalPatients, &stats.TotalProviders, &stats.TotalAppointments, &stats.QuarterAppointments)
	if err != nil {
		return Stats{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointment_log
		GROUP BY status
	`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
