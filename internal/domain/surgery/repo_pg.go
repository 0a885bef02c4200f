package surgery

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

const surgeryCols = `id, patient_id, to_char(date, 'YYYY-MM-DD'), type, insurance_name, hospital,
	main_surgeon, proposed_procedure, created_by, created_at, updated_at`

func scanSurgery(row pgx.Row) (*Surgery, error) {
	var s Surgery
	err := row.Scan(&s.ID, &s.PatientID, &s.Date, &s.Type, &s.InsuranceName, &s.Hospital,
		&s.MainSurgeon, &s.ProposedProcedure, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Surgery) error {
	s.ID = uuid.New()
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO surgeries (id, patient_id, date, type, insurance_name, hospital,
				main_surgeon, proposed_procedure, created_by)
			VALUES ($1, $2, $3::text::date, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`,
			s.ID, s.PatientID, s.Date, s.Type, s.InsuranceName, s.Hospital,
			s.MainSurgeon, s.ProposedProcedure, s.CreatedBy,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert surgery: %w", err)
		}
		if _, err := r.Grant(ctx, s.ID, s.CreatedBy); err != nil {
			return fmt.Errorf("grant creator: %w", err)
		}
		return nil
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return scanSurgery(r.conn(ctx).QueryRow(ctx, `SELECT `+surgeryCols+` FROM surgeries WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, s *Surgery) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE surgeries SET patient_id=$2, date=$3::text::date, type=$4, insurance_name=$5, hospital=$6,
			main_surgeon=$7, proposed_procedure=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.PatientID, s.Date, s.Type, s.InsuranceName, s.Hospital, s.MainSurgeon, s.ProposedProcedure,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Surgery, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+surgeryCols+` FROM surgeries
		WHERE patient_id = $1
		ORDER BY date DESC, created_at
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Surgery, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM surgery_access WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+surgeryCols+` FROM surgeries
		WHERE id IN (SELECT surgery_id FROM surgery_access WHERE user_id = $1)
		ORDER BY date DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) Grant(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO surgery_access (surgery_id, user_id) VALUES ($1, $2)
		ON CONFLICT (surgery_id, user_id) DO NOTHING`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) HasAccess(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM surgery_access WHERE surgery_id = $1 AND user_id = $2)`,
		id, userID).Scan(&ok)
	return ok, err
}

func collect(rows pgx.Rows) ([]*Surgery, error) {
	var items []*Surgery
	for rows.Next() {
		s, err := scanSurgery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
