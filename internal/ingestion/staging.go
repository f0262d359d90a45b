package ingestion

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StagingWriter copies staged rows in batches and keeps the job counters current.
type StagingWriter struct {
	staging        repository.StagingRepository
	jobs           repository.JobRepository
	batchSize      int
	storageTimeout time.Duration
	logger         *zap.Logger

	// afterBatch runs once counters for a batch are persisted.
	afterBatch func(jobID uuid.UUID)
}

// stageCounters accumulates progress while batches are written.
type stageCounters struct {
	processed atomic.Int64
	valid     atomic.Int64
	invalid   atomic.Int64
}

func (c *stageCounters) snapshot() domain.JobCounters {
	return domain.JobCounters{
		ProcessedRows: int(c.processed.Load()),
		ValidRows:     int(c.valid.Load()),
		InvalidRows:   int(c.invalid.Load()),
	}
}

// NewStagingWriter builds a writer. A non-positive batch size falls back to 500.
func NewStagingWriter(
	staging repository.StagingRepository,
	jobs repository.JobRepository,
	batchSize int,
	storageTimeout time.Duration,
	logger *zap.Logger,
) *StagingWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StagingWriter{
		staging:        staging,
		jobs:           jobs,
		batchSize:      batchSize,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

// Stage writes every row, valid or not, and returns the final counters.
func (w *StagingWriter) Stage(ctx context.Context, jobID uuid.UUID, rows []domain.StagedRow) (domain.JobCounters, error) {
	var counters stageCounters

	for start := 0; start < len(rows); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return counters.snapshot(), err
		}

		end := min(start+w.batchSize, len(rows))
		batch := rows[start:end]

		written, err := w.insert(ctx, batch)
		if err != nil {
			return counters.snapshot(), fmt.Errorf("%w: stage rows %d-%d: %w", ErrPersistence, batch[0].RowNumber, batch[len(batch)-1].RowNumber, err)
		}
		if written != len(batch) {
			return counters.snapshot(), fmt.Errorf("%w: staged %d of %d rows", ErrPersistence, written, len(batch))
		}

		for _, row := range batch {
			counters.processed.Add(1)
			if row.IsValid {
				counters.valid.Add(1)
			} else {
				counters.invalid.Add(1)
			}
		}

		snapshot := counters.snapshot()
		if err := w.persist(ctx, jobID, snapshot); err != nil {
			return snapshot, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if w.afterBatch != nil {
			w.afterBatch(jobID)
		}

		w.logger.Debug("staged batch",
			zap.String("job_id", jobID.String()),
			zap.Int("processed_rows", snapshot.ProcessedRows),
			zap.Int("valid_rows", snapshot.ValidRows),
			zap.Int("invalid_rows", snapshot.InvalidRows),
		)
	}

	return counters.snapshot(), nil
}

func (w *StagingWriter) insert(ctx context.Context, batch []domain.StagedRow) (int, error) {
	ctx, cancel := withStorageTimeout(ctx, w.storageTimeout)
	defer cancel()
	return w.staging.InsertBatch(ctx, batch)
}

func (w *StagingWriter) persist(ctx context.Context, jobID uuid.UUID, counters domain.JobCounters) error {
	ctx, cancel := withStorageTimeout(ctx, w.storageTimeout)
	defer cancel()
	return w.jobs.UpdateCounters(ctx, jobID, counters)
}

func withStorageTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
