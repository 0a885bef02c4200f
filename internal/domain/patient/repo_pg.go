package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renandw/anesthesiaReports-sub000/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, name, sex, to_char(birth_date, 'YYYY-MM-DD'), cns, fingerprint, created_by, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Sex, &p.BirthDate, &p.CNS, &p.Fingerprint, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patients (id, name, sex, birth_date, cns, fingerprint, created_by)
			VALUES ($1, $2, $3, $4::text::date, $5, $6, $7)
			RETURNING created_at, updated_at`,
			p.ID, p.Name, p.Sex, p.BirthDate, p.CNS, p.Fingerprint, p.CreatedBy,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		if _, err := r.Grant(ctx, p.ID, p.CreatedBy); err != nil {
			return fmt.Errorf("grant creator: %w", err)
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET name=$2, sex=$3, birth_date=$4::text::date, cns=$5, fingerprint=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Sex, p.BirthDate, p.CNS, p.Fingerprint,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) FindCandidates(ctx context.Context, q CandidateQuery, limit int) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE birth_date = $1::text::date OR cns = $2 OR fingerprint = $3
		ORDER BY created_at
		LIMIT $4`,
		q.BirthDate, q.CNS, q.Fingerprint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_access WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE id IN (SELECT patient_id FROM patient_access WHERE user_id = $1)
		ORDER BY name LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) Grant(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_access (patient_id, user_id) VALUES ($1, $2)
		ON CONFLICT (patient_id, user_id) DO NOTHING`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) HasAccess(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient_access WHERE patient_id = $1 AND user_id = $2)`,
		id, userID).Scan(&ok)
	return ok, err
}

func collect(rows pgx.Rows) ([]*Patient, error) {
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
