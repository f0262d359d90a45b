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

type productRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewProductRepository wires the loan product catalog repository.
func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &productRepository{pool: pool, logger: logger}
}

const productSelect = `SELECT id, provider_name, product_name, interest_rate_min::float8, interest_rate_max::float8,
	loan_amount_min, loan_amount_max, processing_fee_percent::float8, min_monthly_income,
	min_credit_score, max_credit_score, min_age, max_age, is_active, created_at, updated_at
	FROM loan_products`

func (r *productRepository) ListActive(ctx context.Context) ([]domain.LoanProduct, error) {
	rows, err := r.pool.Query(ctx, productSelect+` WHERE is_active ORDER BY provider_name, product_name`)
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	return collectProducts(rows)
}

func (r *productRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.LoanProduct, error) {
	if len(ids) == 0 {
		return []domain.LoanProduct{}, nil
	}
	rows, err := r.pool.Query(ctx, productSelect+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list products by id: %w", err)
	}
	return collectProducts(rows)
}

func (r *productRepository) Upsert(ctx context.Context, products []domain.LoanProduct) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	written := 0
	err := db.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, product := range products {
			id := product.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			batch.Queue(
				`INSERT INTO loan_products (
					id, provider_name, product_name, interest_rate_min, interest_rate_max,
					loan_amount_min, loan_amount_max, processing_fee_percent, min_monthly_income,
					min_credit_score, max_credit_score, min_age, max_age, is_active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				 ON CONFLICT (provider_name, product_name) DO UPDATE
				 SET interest_rate_min = EXCLUDED.interest_rate_min,
				     interest_rate_max = EXCLUDED.interest_rate_max,
				     loan_amount_min = EXCLUDED.loan_amount_min,
				     loan_amount_max = EXCLUDED.loan_amount_max,
				     processing_fee_percent = EXCLUDED.processing_fee_percent,
				     min_monthly_income = EXCLUDED.min_monthly_income,
				     min_credit_score = EXCLUDED.min_credit_score,
				     max_credit_score = EXCLUDED.max_credit_score,
				     min_age = EXCLUDED.min_age,
				     max_age = EXCLUDED.max_age,
				     is_active = EXCLUDED.is_active,
				     updated_at = NOW()`,
				id,
				product.ProviderName,
				product.ProductName,
				product.InterestRateMin,
				product.InterestRateMax,
				product.LoanAmountMin,
				product.LoanAmountMax,
				product.ProcessingFeePercent,
				product.MinMonthlyIncome,
				product.MinCreditScore,
				product.MaxCreditScore,
				product.MinAge,
				product.MaxAge,
				product.IsActive,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := range products {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("upsert product %s/%s: %w", products[i].ProviderName, products[i].ProductName, err)
			}
			written += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func collectProducts(rows pgx.Rows) ([]domain.LoanProduct, error) {
	defer rows.Close()

	products := []domain.LoanProduct{}
	for rows.Next() {
		var product domain.LoanProduct
		if err := rows.Scan(
			&product.ID,
			&product.ProviderName,
			&product.ProductName,
			&product.InterestRateMin,
			&product.InterestRateMax,
			&product.LoanAmountMin,
			&product.LoanAmountMax,
			&product.ProcessingFeePercent,
			&product.MinMonthlyIncome,
			&product.MinCreditScore,
			&product.MaxCreditScore,
			&product.MinAge,
			&product.MaxAge,
			&product.IsActive,
			&product.CreatedAt,
			&product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}
