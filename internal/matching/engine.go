package matching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine computes and stores the matches of every user written by a job.
type Engine struct {
	staging  repository.StagingRepository
	users    repository.UserRepository
	products repository.ProductRepository
	matches  repository.MatchRepository

	workers        int
	minScore       float64
	storageTimeout time.Duration
	logger         *zap.Logger
}

type Option func(*Engine)

func WithWorkers(workers int) Option {
	return func(e *Engine) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

// WithMinScore drops eligible pairs scoring below threshold.
func WithMinScore(threshold float64) Option {
	return func(e *Engine) {
		if threshold >= 0 {
			e.minScore = threshold
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

func NewEngine(
	staging repository.StagingRepository,
	users repository.UserRepository,
	products repository.ProductRepository,
	matches repository.MatchRepository,
	opts ...Option,
) *Engine {
	engine := &Engine{
		staging:  staging,
		users:    users,
		products: products,
		matches:  matches,
		workers:  8,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Match scores the job's users against all active products and returns the number of matches stored.
func (e *Engine) Match(ctx context.Context, jobID uuid.UUID) (int, error) {
	userIDs, err := e.jobUserIDs(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	users, err := e.loadUsers(ctx, userIDs)
	if err != nil {
		return 0, err
	}
	products, err := e.loadProducts(ctx)
	if err != nil {
		return 0, err
	}
	if len(products) == 0 {
		e.logger.Warn("no active products, skipping matching", zap.String("job_id", jobID.String()))
		return 0, nil
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, user := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches := Evaluate(jobID, user, products, e.minScore)
			if len(matches) == 0 {
				return nil
			}
			n, err := e.store(gctx, matches)
			if err != nil {
				return fmt.Errorf("store matches for user %s: %w", user.UserID, err)
			}
			created.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	e.logger.Info("matched users",
		zap.String("job_id", jobID.String()),
		zap.Int("users", len(users)),
		zap.Int("products", len(products)),
		zap.Int64("matches_created", created.Load()),
	)
	return int(created.Load()), nil
}

// Evaluate returns the eligible matches of user at or above minScore.
func Evaluate(batchID uuid.UUID, user domain.User, products []domain.LoanProduct, minScore float64) []domain.Match {
	var matches []domain.Match
	for _, product := range products {
		if !product.IsActive {
			continue
		}
		result := Score(user, product)
		if !result.Eligible || result.Score < minScore {
			continue
		}
		matches = append(matches, domain.Match{
			ID:         uuid.New(),
			BatchID:    batchID,
			UserID:     user.UserID,
			ProductID:  product.ID,
			MatchScore: result.Score,
			IncomeFit:  result.IncomeFit,
			CreditFit:  result.CreditFit,
			ProfileFit: result.ProfileFit,
		})
	}
	return matches
}

func (e *Engine) jobUserIDs(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()

	rows, err := e.staging.ListValid(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load staged rows: %w", err)
	}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.UserID)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse user_id: %w", row.RowNumber, err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) loadUsers(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()
	users, err := e.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func (e *Engine) loadProducts(ctx context.Context) ([]domain.LoanProduct, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()
	products, err := e.products.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

func (e *Engine) store(ctx context.Context, matches []domain.Match) (int, error) {
	ctx, cancel := e.storageContext(ctx)
	defer cancel()
	return e.matches.InsertBatch(ctx, matches)
}

func (e *Engine) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storageTimeout > 0 {
		return context.WithTimeout(ctx, e.storageTimeout)
	}
	return context.WithCancel(ctx)
}
