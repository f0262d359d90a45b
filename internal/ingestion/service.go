package ingestion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	logutil "github.com/rpattn/eligibility/internal/logger"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedFormat is returned when an uploaded file is not a CSV.
var ErrUnsupportedFormat = errors.New("unsupported file format")

const maxErrorLength = 512

// Merger folds a job's valid staged rows into the canonical user store.
type Merger interface {
	Merge(ctx context.Context, jobID uuid.UUID) (int, error)
}

// Matcher scores the users of a job against the active product catalog.
type Matcher interface {
	Match(ctx context.Context, jobID uuid.UUID) (int, error)
}

// StatusInvalidator is told whenever a job record changes.
type StatusInvalidator interface {
	Invalidate(jobID uuid.UUID)
}

// Service drives ingestion jobs through their lifecycle.
type Service struct {
	jobs    repository.JobRepository
	staging repository.StagingRepository
	merger  Merger
	matcher Matcher
	writer  *StagingWriter

	workers        int
	batchSize      int
	jobTimeout     time.Duration
	storageTimeout time.Duration
	logger         *zap.Logger
	invalidator    StatusInvalidator

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
	cancelled     sync.Map // map[uuid.UUID]struct{}
	running       sync.WaitGroup
}

type Option func(*Service)

func WithWorkers(workers int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithStorageTimeout bounds every individual storage call made by the pipeline.
func WithStorageTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.storageTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStatusInvalidator(invalidator StatusInvalidator) Option {
	return func(s *Service) {
		s.invalidator = invalidator
	}
}

// NewService creates a new ingestion service.
func NewService(
	jobs repository.JobRepository,
	staging repository.StagingRepository,
	merger Merger,
	matcher Matcher,
	opts ...Option,
) *Service {
	service := &Service{
		jobs:           jobs,
		staging:        staging,
		merger:         merger,
		matcher:        matcher,
		workers:        8,
		batchSize:      500,
		jobTimeout:     30 * time.Minute,
		storageTimeout: 15 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	service.writer = NewStagingWriter(staging, jobs, service.batchSize, service.storageTimeout, service.logger)
	service.writer.afterBatch = service.invalidate
	return service
}

// RegisterUpload issues a job for a file that will be sent later.
func (s *Service) RegisterUpload(ctx context.Context, fileName string) (domain.Job, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return domain.Job{}, errors.New("file name is required")
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return domain.Job{}, fmt.Errorf("%w: only .csv files are accepted", ErrUnsupportedFormat)
	}
	job, err := s.jobs.Create(ctx, domain.NewJob(uuid.New(), fileName))
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.Info("registered upload", zap.String("job_id", job.ID.String()), zap.String("file_name", logutil.TruncateForLog(fileName, 128)))
	return job, nil
}

// StartIngestion accepts the payload for jobID and runs the pipeline on a background worker.
// It returns once the job has moved to PARSING.
func (s *Service) StartIngestion(ctx context.Context, jobID uuid.UUID, data []byte) error {
	if err := s.accept(ctx, jobID); err != nil {
		return err
	}
	s.launchWorker(jobID, data)
	return nil
}

// Process runs the whole pipeline on the calling goroutine and returns the final job record.
func (s *Service) Process(ctx context.Context, jobID uuid.UUID, data []byte) (domain.Job, error) {
	if err := s.accept(ctx, jobID); err != nil {
		return domain.Job{}, err
	}

	jobCtx, cancel := s.jobContext(ctx)
	s.workerCancels.Store(jobID, cancel)
	defer func() {
		cancel()
		s.workerCancels.Delete(jobID)
	}()

	runErr := s.finish(jobCtx, jobID, s.run(jobCtx, jobID, data))

	job, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		return domain.Job{}, multierr.Append(runErr, err)
	}
	return job, runErr
}

// Wait blocks until every background worker has returned.
func (s *Service) Wait() {
	s.running.Wait()
}

// GetJob returns the persisted job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	if id == uuid.Nil {
		return domain.Job{}, errors.New("job ID is required")
	}
	return s.jobs.GetByID(ctx, id)
}

// ListInvalidRows returns the rejected rows of a job together with their errors.
func (s *Service) ListInvalidRows(ctx context.Context, id uuid.UUID, limit, offset int) ([]domain.StagedRow, error) {
	if id == uuid.Nil {
		return nil, errors.New("job ID is required")
	}
	return s.staging.ListInvalid(ctx, id, limit, offset)
}

// CancelJob requests cancellation of a job that has not reached a terminal state.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("%w: job %s is %s", ErrJobTerminal, id, job.Status)
	}

	s.cancelled.Store(id, struct{}{})
	if cancel, ok := s.workerCancels.Load(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
		s.logger.Info("cancellation requested", zap.String("job_id", id.String()))
		return s.GetJob(ctx, id)
	}

	// No local worker owns the job, so record the failure directly.
	defer s.cancelled.Delete(id)
	if err := s.jobs.MarkFailed(ctx, id, ErrCancelled.Error()); err != nil && !errors.Is(err, repository.ErrJobStatusConflict) {
		return job, err
	}
	s.invalidate(id)
	return s.GetJob(ctx, id)
}

func (s *Service) accept(ctx context.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return errors.New("job ID is required")
	}

	job, err := s.jobs.Create(ctx, domain.NewJob(jobID, ""))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	switch {
	case job.Status.Terminal():
		return fmt.Errorf("%w: job %s is %s", ErrJobTerminal, jobID, job.Status)
	case job.Status != domain.JobStatusUploaded:
		return fmt.Errorf("%w: job %s is %s", ErrJobNotRunnable, jobID, job.Status)
	}

	if err := s.advance(ctx, jobID, domain.JobStatusUploaded, domain.JobStatusParsing, repository.JobUpdate{}); err != nil {
		return err
	}
	return nil
}

func (s *Service) jobContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.jobTimeout > 0 {
		return context.WithTimeout(parent, s.jobTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Service) launchWorker(jobID uuid.UUID, data []byte) {
	ctx, cancel := s.jobContext(context.Background())
	s.workerCancels.Store(jobID, cancel)
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer func() {
			cancel()
			s.workerCancels.Delete(jobID)
			s.cancelled.Delete(jobID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				s.logger.Error("panic while processing job", zap.String("job_id", jobID.String()), zap.Any("panic", rec))
				s.failJob(context.Background(), jobID, err)
			}
		}()
		_ = s.finish(ctx, jobID, s.run(ctx, jobID, data))
	}()
}

// finish records the outcome of a pipeline run and returns the error reported to callers.
func (s *Service) finish(ctx context.Context, jobID uuid.UUID, err error) error {
	defer s.cancelled.Delete(jobID)

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrJobNotRunnable) {
		s.logger.Info("job not runnable, skipping", zap.String("job_id", jobID.String()), zap.Error(err))
		return err
	}

	switch {
	case s.isCancelled(jobID):
		err = ErrCancelled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("job exceeded timeout of %s: %w", s.jobTimeout, err)
	}
	s.failJob(ctx, jobID, err)
	return err
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	message := truncateError(err)
	if markErr := s.jobs.MarkFailed(ctx, jobID, message); markErr != nil {
		s.logger.Error("failed to mark job as failed",
			zap.String("job_id", jobID.String()),
			zap.Error(multierr.Combine(err, markErr)),
		)
		return
	}
	s.invalidate(jobID)
	s.logger.Warn("job failed", zap.String("job_id", jobID.String()), zap.Error(err))
}

func (s *Service) run(ctx context.Context, jobID uuid.UUID, data []byte) error {
	started := time.Now()

	parsed, err := ParseCSV(data)
	if err != nil {
		return err
	}
	total := len(parsed.Rows)
	if err := s.advance(ctx, jobID, domain.JobStatusParsing, domain.JobStatusValidating, repository.JobUpdate{TotalRows: &total}); err != nil {
		return err
	}

	staged, err := s.validateRows(ctx, jobID, parsed)
	if err != nil {
		return err
	}
	if err := s.advance(ctx, jobID, domain.JobStatusValidating, domain.JobStatusStaging, repository.JobUpdate{}); err != nil {
		return err
	}

	counters, err := s.writer.Stage(ctx, jobID, staged)
	if err != nil {
		return err
	}
	if counters.ValidRows+counters.InvalidRows != total {
		return fmt.Errorf("%w: staged %d rows, expected %d", ErrPersistence, counters.ValidRows+counters.InvalidRows, total)
	}
	if err := s.verifyStaged(ctx, jobID, total); err != nil {
		return err
	}
	if err := s.checkpoint(ctx, jobID); err != nil {
		return err
	}

	merged, err := s.merger.Merge(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: merge users: %w", ErrPersistence, err)
	}
	if err := s.advance(ctx, jobID, domain.JobStatusStaging, domain.JobStatusLoaded, repository.JobUpdate{MergedUsers: &merged}); err != nil {
		return err
	}
	if err := s.checkpoint(ctx, jobID); err != nil {
		return err
	}

	if err := s.advance(ctx, jobID, domain.JobStatusLoaded, domain.JobStatusMatching, repository.JobUpdate{}); err != nil {
		return err
	}
	matches, err := s.matcher.Match(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: match users: %w", ErrDownstreamUnavailable, err)
	}
	if err := s.advance(ctx, jobID, domain.JobStatusMatching, domain.JobStatusCompleted, repository.JobUpdate{MatchesCreated: &matches}); err != nil {
		return err
	}

	s.logger.Info("job completed",
		zap.String("job_id", jobID.String()),
		zap.Int("total_rows", total),
		zap.Int("valid_rows", counters.ValidRows),
		zap.Int("invalid_rows", counters.InvalidRows),
		zap.Int("merged_users", merged),
		zap.Int("matches_created", matches),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// validateRows fans validation out over the worker pool; results keep input order.
func (s *Service) validateRows(ctx context.Context, jobID uuid.UUID, parsed ParsedCSV) ([]domain.StagedRow, error) {
	rows := parsed.Rows
	staged := make([]domain.StagedRow, len(rows))
	width := len(parsed.Header)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := s.checkpoint(gctx, jobID); err != nil {
					return err
				}
				row := rows[i]
				staged[i] = domain.NewStagedRow(jobID, row.Number, SanitizeValues(row.Values), ValidateRow(row, width))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return staged, nil
}

// verifyStaged checks the store holds exactly total staged rows for the job.
func (s *Service) verifyStaged(ctx context.Context, jobID uuid.UUID, total int) error {
	storageCtx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	stored, err := s.staging.CountByJob(storageCtx, jobID)
	if err != nil {
		return fmt.Errorf("%w: count staged rows: %w", ErrPersistence, err)
	}
	if stored != total {
		return fmt.Errorf("%w: store holds %d staged rows, expected %d", ErrPersistence, stored, total)
	}
	return nil
}

func (s *Service) advance(ctx context.Context, jobID uuid.UUID, from, to domain.JobStatus, update repository.JobUpdate) error {
	if err := s.checkpoint(ctx, jobID); err != nil {
		return err
	}

	storageCtx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	if err := s.jobs.Transition(storageCtx, jobID, from, to, update); err != nil {
		if errors.Is(err, repository.ErrJobStatusConflict) {
			return fmt.Errorf("%w: %w", ErrJobNotRunnable, err)
		}
		return fmt.Errorf("%w: move job to %s: %w", ErrPersistence, to, err)
	}
	s.invalidate(jobID)
	s.logger.Debug("job transitioned",
		zap.String("job_id", jobID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (s *Service) checkpoint(ctx context.Context, jobID uuid.UUID) error {
	if s.isCancelled(jobID) {
		return ErrCancelled
	}
	return ctx.Err()
}

func (s *Service) isCancelled(jobID uuid.UUID) bool {
	_, ok := s.cancelled.Load(jobID)
	return ok
}

func (s *Service) invalidate(jobID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(jobID)
	}
}

// truncateError renders err as a job message PostgreSQL TEXT accepts: valid UTF-8, no NUL, at most 512 bytes.
func truncateError(err error) string {
	if err == nil {
		return ""
	}
	return logutil.Truncate(strings.ReplaceAll(err.Error(), "\x00", ""), maxErrorLength)
}
