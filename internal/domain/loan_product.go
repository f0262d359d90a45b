package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoanProduct describes a lender offering and its hard eligibility bounds.
type LoanProduct struct {
	ID                   uuid.UUID `json:"product_id"`
	ProviderName         string    `json:"provider_name"`
	ProductName          string    `json:"product_name"`
	InterestRateMin      float64   `json:"interest_rate_min"`
	InterestRateMax      float64   `json:"interest_rate_max"`
	LoanAmountMin        int64     `json:"loan_amount_min"`
	LoanAmountMax        int64     `json:"loan_amount_max"`
	ProcessingFeePercent float64   `json:"processing_fee_percent"`
	MinMonthlyIncome     int64     `json:"min_monthly_income"`
	MinCreditScore       int       `json:"min_credit_score"`
	MaxCreditScore       int       `json:"max_credit_score"`
	MinAge               int       `json:"min_age"`
	MaxAge               int       `json:"max_age"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Match records an eligible user/product pair produced by one job.
type Match struct {
	ID         uuid.UUID `json:"match_id"`
	BatchID    uuid.UUID `json:"batch_id"`
	UserID     uuid.UUID `json:"user_id"`
	ProductID  uuid.UUID `json:"product_id"`
	MatchScore float64   `json:"match_score"`
	IncomeFit  float64   `json:"income_fit_score"`
	CreditFit  float64   `json:"credit_fit_score"`
	ProfileFit float64   `json:"profile_fit_score"`
	CreatedAt  time.Time `json:"created_at"`
}
