package merge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine upserts a job's valid staged rows into the user store.
type Engine struct {
	staging        repository.StagingRepository
	users          repository.UserRepository
	batchSize      int
	storageTimeout time.Duration
	logger         *zap.Logger
}

type Option func(*Engine)

func WithBatchSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

func WithStorageTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.storageTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(staging repository.StagingRepository, users repository.UserRepository, opts ...Option) *Engine {
	engine := &Engine{
		staging:   staging,
		users:     users,
		batchSize: 500,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Merge writes the surviving row per user_id and returns how many users were inserted or changed.
// Running it twice over the same staged set reports 0 the second time.
func (e *Engine) Merge(ctx context.Context, jobID uuid.UUID) (int, error) {
	rows, err := e.listValid(ctx, jobID)
	if err != nil {
		return 0, err
	}

	survivors, err := Deduplicate(rows, jobID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for start := 0; start < len(survivors); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		end := min(start+e.batchSize, len(survivors))
		n, err := e.upsert(ctx, survivors[start:end])
		if err != nil {
			return changed, fmt.Errorf("upsert users: %w", err)
		}
		changed += n
	}

	e.logger.Info("merged staged users",
		zap.String("job_id", jobID.String()),
		zap.Int("valid_rows", len(rows)),
		zap.Int("distinct_users", len(survivors)),
		zap.Int("merged_users", changed),
	)
	return changed, nil
}

// Deduplicate keeps the last row per user_id (by row number) and returns users ordered by that row.
func Deduplicate(rows []domain.StagedRow, batchID uuid.UUID) ([]domain.User, error) {
	type candidate struct {
		rowNumber int
		user      domain.User
	}

	latest := make(map[uuid.UUID]candidate, len(rows))
	for _, row := range rows {
		if !row.IsValid {
			continue
		}
		user, err := ToUser(row, batchID)
		if err != nil {
			return nil, err
		}
		if existing, ok := latest[user.UserID]; ok && existing.rowNumber > row.RowNumber {
			continue
		}
		latest[user.UserID] = candidate{rowNumber: row.RowNumber, user: user}
	}

	ordered := make([]candidate, 0, len(latest))
	for _, c := range latest {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].rowNumber < ordered[j].rowNumber })

	users := make([]domain.User, len(ordered))
	for i, c := range ordered {
		users[i] = c.user
	}
	return users, nil
}

// ToUser converts a valid staged row into its canonical form.
func ToUser(row domain.StagedRow, batchID uuid.UUID) (domain.User, error) {
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("row %d: parse user_id: %w", row.RowNumber, err)
	}
	income, err := strconv.ParseInt(row.MonthlyIncome, 10, 64)
	if err != nil {
		return domain.User{}, fmt.Errorf("row %d: parse monthly_income: %w", row.RowNumber, err)
	}
	creditScore, err := strconv.Atoi(row.CreditScore)
	if err != nil {
		return domain.User{}, fmt.Errorf("row %d: parse credit_score: %w", row.RowNumber, err)
	}
	age, err := strconv.Atoi(row.Age)
	if err != nil {
		return domain.User{}, fmt.Errorf("row %d: parse age: %w", row.RowNumber, err)
	}
	return domain.User{
		UserID:           userID,
		Name:             row.Name,
		Email:            row.Email,
		MonthlyIncome:    income,
		CreditScore:      creditScore,
		EmploymentStatus: domain.EmploymentStatus(row.EmploymentStatus),
		Age:              age,
		BatchID:          batchID,
	}, nil
}

func (e *Engine) listValid(ctx context.Context, jobID uuid.UUID) ([]domain.StagedRow, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()
	rows, err := e.staging.ListValid(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load staged rows: %w", err)
	}
	return rows, nil
}

func (e *Engine) upsert(ctx context.Context, users []domain.User) (int, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()
	return e.users.UpsertBatch(ctx, users)
}

func (e *Engine) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storageTimeout > 0 {
		return context.WithTimeout(ctx, e.storageTimeout)
	}
	return context.WithCancel(ctx)
}
