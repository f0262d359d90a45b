package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmploymentStatus enumerates the accepted employment categories.
type EmploymentStatus string

const (
	EmploymentSalaried     EmploymentStatus = "Salaried"
	EmploymentSelfEmployed EmploymentStatus = "Self-Employed"
	EmploymentBusiness     EmploymentStatus = "Business"
)

// EmploymentStatuses lists the accepted values in display order.
var EmploymentStatuses = []EmploymentStatus{
	EmploymentSalaried,
	EmploymentSelfEmployed,
	EmploymentBusiness,
}

// Column names every uploaded CSV must carry.
const (
	ColumnUserID           = "user_id"
	ColumnName             = "name"
	ColumnEmail            = "email"
	ColumnMonthlyIncome    = "monthly_income"
	ColumnCreditScore      = "credit_score"
	ColumnEmploymentStatus = "employment_status"
	ColumnAge              = "age"
)

// RequiredColumns is the header contract for applicant uploads.
var RequiredColumns = []string{
	ColumnUserID,
	ColumnName,
	ColumnEmail,
	ColumnMonthlyIncome,
	ColumnCreditScore,
	ColumnEmploymentStatus,
	ColumnAge,
}

// StagedRow is one parsed CSV line held for a job, valid or not.
type StagedRow struct {
	JobID            uuid.UUID `json:"job_id"`
	RowNumber        int       `json:"row_number"`
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	MonthlyIncome    string    `json:"monthly_income"`
	CreditScore      string    `json:"credit_score"`
	EmploymentStatus string    `json:"employment_status"`
	Age              string    `json:"age"`
	IsValid          bool      `json:"is_valid"`
	Errors           []string  `json:"validation_errors"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewStagedRow builds a staged row from raw column values and the validation outcome.
func NewStagedRow(jobID uuid.UUID, rowNumber int, values map[string]string, errs []string) StagedRow {
	if errs == nil {
		errs = []string{}
	}
	return StagedRow{
		JobID:            jobID,
		RowNumber:        rowNumber,
		UserID:           values[ColumnUserID],
		Name:             values[ColumnName],
		Email:            values[ColumnEmail],
		MonthlyIncome:    values[ColumnMonthlyIncome],
		CreditScore:      values[ColumnCreditScore],
		EmploymentStatus: values[ColumnEmploymentStatus],
		Age:              values[ColumnAge],
		IsValid:          len(errs) == 0,
		Errors:           errs,
	}
}

// User is the canonical applicant record keyed by its external identifier.
type User struct {
	UserID           uuid.UUID        `json:"user_id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	MonthlyIncome    int64            `json:"monthly_income"`
	CreditScore      int              `json:"credit_score"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	Age              int              `json:"age"`
	BatchID          uuid.UUID        `json:"batch_id"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// BatchUserSummary lists a user written by a job together with its match outcome.
type BatchUserSummary struct {
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	MatchCount     int       `json:"match_count"`
	BestMatchScore *float64  `json:"best_match_score,omitempty"`
}
