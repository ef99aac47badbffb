package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/salud-online/sos/libs/db"
)

// Recipient is the local cache of who can be emailed. Rows are built from
// user and profile creation events so sending a notification never needs a
// synchronous call into another service.
type Recipient struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type Notification struct {
	AppointmentID string
	Recipient     string
	Template      string
	Subject       string
	Payload       map[string]string
	Status        string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) UpsertRecipient(ctx context.Context, rec Recipient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recipients (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role
	`, rec.ID, rec.Name, rec.Email, rec.Role)
	return err
}

func (r *Repository) GetRecipient(ctx context.Context, id string) (Recipient, error) {
	var rec Recipient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role
		FROM recipients
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Role)
	if err != nil {
		return Recipient{}, err
	}
	return rec, nil
}

func (r *Repository) DeleteRecipient(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM recipients WHERE id = $1`, id)
	return err
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, recipient, template, subject, payload, status)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.Recipient, n.Template, n.Subject, payload, n.Status)
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
