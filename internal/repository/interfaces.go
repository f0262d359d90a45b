package repository

import (
	"context"
	"errors"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrJobStatusConflict indicates that a job cannot transition to the requested state.
	ErrJobStatusConflict = errors.New("job status conflict")
)

// JobUpdate carries optional counter writes applied together with a status transition.
type JobUpdate struct {
	TotalRows      *int
	MergedUsers    *int
	MatchesCreated *int
}

// JobRepository persists ingestion jobs. Every status write is conditional on the current status.
type JobRepository interface {
	// Create inserts the job when absent and returns the stored record either way.
	Create(ctx context.Context, job domain.Job) (domain.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Job, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, update JobUpdate) error
	UpdateCounters(ctx context.Context, id uuid.UUID, counters domain.JobCounters) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// StagingRepository stores parsed CSV rows per job.
type StagingRepository interface {
	InsertBatch(ctx context.Context, rows []domain.StagedRow) (int, error)
	ListValid(ctx context.Context, jobID uuid.UUID) ([]domain.StagedRow, error)
	ListInvalid(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagedRow, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
}

// UserRepository owns the canonical user table.
type UserRepository interface {
	// UpsertBatch writes users atomically and returns how many rows were inserted or changed.
	UpsertBatch(ctx context.Context, users []domain.User) (int, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
	ListBatchSummaries(ctx context.Context, batchID uuid.UUID) ([]domain.BatchUserSummary, error)
}

// ProductRepository reads and maintains the loan product catalog.
type ProductRepository interface {
	ListActive(ctx context.Context) ([]domain.LoanProduct, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.LoanProduct, error)
	// Upsert writes products keyed by provider and product name.
	Upsert(ctx context.Context, products []domain.LoanProduct) (int, error)
}

// MatchRepository stores eligibility matches.
type MatchRepository interface {
	// InsertBatch ignores pairs already recorded for the batch and returns the number inserted.
	InsertBatch(ctx context.Context, matches []domain.Match) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Match, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Match, error)
	Stats(ctx context.Context, batchID uuid.UUID) (domain.MatchStats, error)
}
