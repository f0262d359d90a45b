package ingestion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rpattn/eligibility/internal/domain"
)

const (
	msgInvalidUserID     = "Invalid user_id format (must be UUID)"
	msgInvalidIncome     = "monthly_income must be a positive number"
	msgInvalidCredit     = "credit_score must be between 300 and 900"
	msgInvalidAge        = "age must be between 18 and 100"
	msgInvalidEmployment = "employment_status must be one of: Salaried, Self-Employed, Business"
	msgInvalidEmail      = "Invalid email format"
	msgInvalidEncoding   = "%s contains invalid UTF-8 or NUL characters"

	minCreditScore = 300
	maxCreditScore = 900
	minAge         = 18
	maxAge         = 100
)

// uuid.Parse also accepts braces, urn prefixes and undashed forms; uploads must use the canonical layout.
var userIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Validate checks one row and returns every rule it breaks. An empty result means the row is valid.
func Validate(row map[string]string) []string {
	errs := []string{}

	if !userIDPattern.MatchString(value(row, domain.ColumnUserID)) {
		errs = append(errs, msgInvalidUserID)
	}

	if income, err := strconv.ParseInt(value(row, domain.ColumnMonthlyIncome), 10, 64); err != nil || income <= 0 {
		errs = append(errs, msgInvalidIncome)
	}

	if !intInRange(value(row, domain.ColumnCreditScore), minCreditScore, maxCreditScore) {
		errs = append(errs, msgInvalidCredit)
	}

	if !intInRange(value(row, domain.ColumnAge), minAge, maxAge) {
		errs = append(errs, msgInvalidAge)
	}

	if !validEmployment(value(row, domain.ColumnEmploymentStatus)) {
		errs = append(errs, msgInvalidEmployment)
	}

	if email := value(row, domain.ColumnEmail); email == "" || !strings.Contains(email, "@") {
		errs = append(errs, msgInvalidEmail)
	}

	return errs
}

// ValidateRow applies Validate and also flags rows whose width differs from the header.
func ValidateRow(row RawRow, headerWidth int) []string {
	errs := []string{}
	if row.FieldCount != headerWidth {
		errs = append(errs, fmt.Sprintf("row has %d fields, expected %d", row.FieldCount, headerWidth))
	}
	for _, column := range domain.RequiredColumns {
		if !storable(row.Values[column]) {
			errs = append(errs, fmt.Sprintf(msgInvalidEncoding, column))
		}
	}
	return append(errs, Validate(row.Values)...)
}

// SanitizeValues returns a copy of values that a PostgreSQL TEXT column accepts.
// Invalid byte sequences become U+FFFD and NUL bytes are dropped.
func SanitizeValues(values map[string]string) map[string]string {
	clean := make(map[string]string, len(values))
	for column, v := range values {
		if !storable(v) {
			v = strings.ReplaceAll(strings.ToValidUTF8(v, "\uFFFD"), "\x00", "")
		}
		clean[column] = v
	}
	return clean
}

func storable(v string) bool {
	return utf8.ValidString(v) && !strings.ContainsRune(v, 0)
}

func value(row map[string]string, key string) string {
	return strings.TrimSpace(row[key])
}

func intInRange(raw string, lo, hi int) bool {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	return n >= lo && n <= hi
}

func validEmployment(raw string) bool {
	for _, status := range domain.EmploymentStatuses {
		if raw == string(status) {
			return true
		}
	}
	return false
}
