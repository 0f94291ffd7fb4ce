package appointment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads the doctor and patient tables maintained by the
// registration flows.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	var doc Doctor
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, qualification, default_fee
		FROM doctors
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.Name, &doc.Qualification, &doc.DefaultFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (d *PgDirectory) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

var _ Directory = (*PgDirectory)(nil)
