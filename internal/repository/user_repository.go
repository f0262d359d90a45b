package repository

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/rpattn/eligibility/internal/db"
	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type userRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository wires the canonical user repository.
func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userRepository{pool: pool, logger: logger}
}

// upsertUserSQL only touches an existing row when a field or the owning batch differs,
// so RowsAffected counts real inserts and changes.
const upsertUserSQL = `INSERT INTO users (user_id, name, email, monthly_income, credit_score, employment_status, age, batch_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id) DO UPDATE
SET name = EXCLUDED.name,
    email = EXCLUDED.email,
    monthly_income = EXCLUDED.monthly_income,
    credit_score = EXCLUDED.credit_score,
    employment_status = EXCLUDED.employment_status,
    age = EXCLUDED.age,
    batch_id = EXCLUDED.batch_id,
    updated_at = NOW()
WHERE users.name IS DISTINCT FROM EXCLUDED.name
   OR users.email IS DISTINCT FROM EXCLUDED.email
   OR users.monthly_income IS DISTINCT FROM EXCLUDED.monthly_income
   OR users.credit_score IS DISTINCT FROM EXCLUDED.credit_score
   OR users.employment_status IS DISTINCT FROM EXCLUDED.employment_status
   OR users.age IS DISTINCT FROM EXCLUDED.age
   OR users.batch_id IS DISTINCT FROM EXCLUDED.batch_id`

func (r *userRepository) UpsertBatch(ctx context.Context, users []domain.User) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}

	users = inLockOrder(users)

	changed := 0
	err := db.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, user := range users {
			batch.Queue(
				upsertUserSQL,
				user.UserID,
				user.Name,
				user.Email,
				user.MonthlyIncome,
				user.CreditScore,
				string(user.EmploymentStatus),
				user.Age,
				user.BatchID,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range users {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("upsert user %s: %w", users[i].UserID, err)
			}
			changed += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// inLockOrder returns a copy of users sorted by user_id so concurrent upserts over
// overlapping sets take row locks in the same order.
func inLockOrder(users []domain.User) []domain.User {
	sorted := slices.Clone(users)
	slices.SortFunc(sorted, func(a, b domain.User) int {
		return bytes.Compare(a.UserID[:], b.UserID[:])
	})
	return sorted
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT user_id, name, email, monthly_income, credit_score, employment_status, age, batch_id, created_at, updated_at
		 FROM users
		 WHERE user_id = ANY($1)
		 ORDER BY user_id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, len(ids))
	for rows.Next() {
		var (
			user       domain.User
			employment string
		)
		if err := rows.Scan(
			&user.UserID,
			&user.Name,
			&user.Email,
			&user.MonthlyIncome,
			&user.CreditScore,
			&employment,
			&user.Age,
			&user.BatchID,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.EmploymentStatus = domain.EmploymentStatus(employment)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListBatchSummaries(ctx context.Context, batchID uuid.UUID) ([]domain.BatchUserSummary, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT u.user_id, u.name, u.email, COUNT(m.id), MAX(m.match_score)::float8
		 FROM users u
		 LEFT JOIN user_product_matches m ON m.user_id = u.user_id AND m.batch_id = $1
		 WHERE u.batch_id = $1
		 GROUP BY u.user_id, u.name, u.email
		 ORDER BY COUNT(m.id) DESC, MAX(m.match_score) DESC NULLS LAST, u.user_id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list batch users: %w", err)
	}
	defer rows.Close()

	summaries := []domain.BatchUserSummary{}
	for rows.Next() {
		var (
			summary domain.BatchUserSummary
			best    pgtype.Float8
		)
		if err := rows.Scan(&summary.UserID, &summary.Name, &summary.Email, &summary.MatchCount, &best); err != nil {
			return nil, fmt.Errorf("failed to scan batch user: %w", err)
		}
		if best.Valid {
			score := best.Float64
			summary.BestMatchScore = &score
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch users: %w", err)
	}
	return summaries, nil
}
