package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository wires a job repository backed by pgxpool.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `id, status, file_name, total_rows, processed_rows, valid_rows, invalid_rows,
	merged_users, matches_created, error_message, started_at, completed_at, created_at, updated_at`

func (r *jobRepository) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusUploaded
	}

	if _, err := r.pool.Exec(
		ctx,
		`INSERT INTO ingestion_jobs (id, status, file_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		job.ID,
		string(job.Status),
		job.FileName,
	); err != nil {
		return domain.Job{}, fmt.Errorf("insert ingestion job: %w", err)
	}

	return r.GetByID(ctx, job.ID)
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("get ingestion job %s: %w", id, ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("get ingestion job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, update JobUpdate) error {
	if to == domain.JobStatusFailed {
		return errors.New("use MarkFailed to fail a job")
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrJobStatusConflict, from, to)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE ingestion_jobs
		 SET status = $3::text,
		     total_rows = COALESCE($4::integer, total_rows),
		     merged_users = COALESCE($5::integer, merged_users),
		     matches_created = COALESCE($6::integer, matches_created),
		     started_at = CASE WHEN $3::text = 'PARSING' THEN NOW() ELSE started_at END,
		     completed_at = CASE WHEN $3::text = 'COMPLETED' THEN NOW() ELSE completed_at END,
		     updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id,
		string(from),
		string(to),
		update.TotalRows,
		update.MergedUsers,
		update.MatchesCreated,
	)
	if err != nil {
		return fmt.Errorf("transition ingestion job to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrJobStatusConflict, from, to)
	}
	return nil
}

func (r *jobRepository) UpdateCounters(ctx context.Context, id uuid.UUID, counters domain.JobCounters) error {
	if _, err := r.pool.Exec(
		ctx,
		`UPDATE ingestion_jobs
		 SET processed_rows = $2, valid_rows = $3, invalid_rows = $4, updated_at = NOW()
		 WHERE id = $1`,
		id,
		counters.ProcessedRows,
		counters.ValidRows,
		counters.InvalidRows,
	); err != nil {
		return fmt.Errorf("update ingestion job counters: %w", err)
	}
	return nil
}

func (r *jobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE ingestion_jobs
		 SET status = 'FAILED', error_message = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`,
		id,
		errorMessage,
	)
	if err != nil {
		return fmt.Errorf("mark ingestion job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobStatusConflict
	}
	return nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job          domain.Job
		status       string
		errorMessage pgtype.Text
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&job.FileName,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.ValidRows,
		&job.InvalidRows,
		&job.MergedUsers,
		&job.MatchesCreated,
		&errorMessage,
		&startedAt,
		&completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.Job{}, err
	}

	job.Status = domain.JobStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		job.ErrorMessage = &msg
	}
	if startedAt.Valid {
		ts := startedAt.Time
		job.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := completedAt.Time
		job.CompletedAt = &ts
	}
	return job, nil
}
