package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stagingRepository struct {
	pool *pgxpool.Pool
}

// NewStagingRepository wires the users_staging repository.
func NewStagingRepository(pool *pgxpool.Pool) StagingRepository {
	return &stagingRepository{pool: pool}
}

var stagingCopyColumns = []string{
	"job_id",
	"row_number",
	"user_id",
	"name",
	"email",
	"monthly_income",
	"credit_score",
	"employment_status",
	"age",
	"is_valid",
	"validation_errors",
}

func (r *stagingRepository) InsertBatch(ctx context.Context, rows []domain.StagedRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	copied, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"users_staging"},
		stagingCopyColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			row := rows[i]
			errs := row.Errors
			if errs == nil {
				errs = []string{}
			}
			return []any{
				row.JobID,
				row.RowNumber,
				row.UserID,
				row.Name,
				row.Email,
				row.MonthlyIncome,
				row.CreditScore,
				row.EmploymentStatus,
				row.Age,
				row.IsValid,
				errs,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy staged rows: %w", err)
	}
	return int(copied), nil
}

const stagingSelect = `SELECT job_id, row_number, user_id, name, email, monthly_income, credit_score,
	employment_status, age, is_valid, validation_errors, created_at
	FROM users_staging`

func (r *stagingRepository) ListValid(ctx context.Context, jobID uuid.UUID) ([]domain.StagedRow, error) {
	rows, err := r.pool.Query(ctx, stagingSelect+` WHERE job_id = $1 AND is_valid ORDER BY row_number`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list valid staged rows: %w", err)
	}
	return collectStagedRows(rows)
}

func (r *stagingRepository) ListInvalid(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagedRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(
		ctx,
		stagingSelect+` WHERE job_id = $1 AND NOT is_valid ORDER BY row_number LIMIT $2 OFFSET $3`,
		jobID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list invalid staged rows: %w", err)
	}
	return collectStagedRows(rows)
}

func (r *stagingRepository) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users_staging WHERE job_id = $1`, jobID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count staged rows: %w", err)
	}
	return count, nil
}

func collectStagedRows(rows pgx.Rows) ([]domain.StagedRow, error) {
	defer rows.Close()

	staged := []domain.StagedRow{}
	for rows.Next() {
		var row domain.StagedRow
		if err := rows.Scan(
			&row.JobID,
			&row.RowNumber,
			&row.UserID,
			&row.Name,
			&row.Email,
			&row.MonthlyIncome,
			&row.CreditScore,
			&row.EmploymentStatus,
			&row.Age,
			&row.IsValid,
			&row.Errors,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", err)
		}
		staged = append(staged, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staged rows: %w", err)
	}
	return staged, nil
}
