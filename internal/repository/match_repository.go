package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/eligibility/internal/db"
	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type matchRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewMatchRepository wires the user_product_matches repository.
func NewMatchRepository(pool *pgxpool.Pool, logger *zap.Logger) MatchRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &matchRepository{pool: pool, logger: logger}
}

func (r *matchRepository) InsertBatch(ctx context.Context, matches []domain.Match) (int, error) {
	if len(matches) == 0 {
		return 0, nil
	}

	inserted := 0
	err := db.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, match := range matches {
			id := match.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			batch.Queue(
				`INSERT INTO user_product_matches
					(id, batch_id, user_id, product_id, match_score, income_fit_score, credit_fit_score, profile_fit_score)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (batch_id, user_id, product_id) DO NOTHING`,
				id,
				match.BatchID,
				match.UserID,
				match.ProductID,
				match.MatchScore,
				match.IncomeFit,
				match.CreditFit,
				match.ProfileFit,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range matches {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("insert match: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

const matchSelect = `SELECT id, batch_id, user_id, product_id, match_score::float8, income_fit_score::float8,
	credit_fit_score::float8, profile_fit_score::float8, created_at
	FROM user_product_matches`

func (r *matchRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, matchSelect+` WHERE user_id = $1 ORDER BY match_score DESC, product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user matches: %w", err)
	}
	return collectMatches(rows)
}

func (r *matchRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, matchSelect+` WHERE batch_id = $1 ORDER BY user_id, match_score DESC, product_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch matches: %w", err)
	}
	return collectMatches(rows)
}

func (r *matchRepository) Stats(ctx context.Context, batchID uuid.UUID) (domain.MatchStats, error) {
	var stats domain.MatchStats
	if err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(ROUND(AVG(match_score), 1), 0)::float8
		 FROM user_product_matches
		 WHERE batch_id = $1`,
		batchID,
	).Scan(&stats.TotalMatches, &stats.UsersMatched, &stats.AvgScore); err != nil {
		return domain.MatchStats{}, fmt.Errorf("match stats: %w", err)
	}
	return stats, nil
}

func collectMatches(rows pgx.Rows) ([]domain.Match, error) {
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var match domain.Match
		if err := rows.Scan(
			&match.ID,
			&match.BatchID,
			&match.UserID,
			&match.ProductID,
			&match.MatchScore,
			&match.IncomeFit,
			&match.CreditFit,
			&match.ProfileFit,
			&match.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}
