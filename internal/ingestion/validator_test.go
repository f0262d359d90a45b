package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func validRow() map[string]string {
	return map[string]string{
		"user_id":           "550e8400-e29b-41d4-a716-446655440099",
		"name":              "Jane Doe",
		"email":             "jane@x.com",
		"monthly_income":    "80000",
		"credit_score":      "750",
		"employment_status": "Salaried",
		"age":               "30",
	}
}

func TestValidateAcceptsValidRow(t *testing.T) {
	t.Parallel()

	if errs := Validate(validRow()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	upper := validRow()
	upper["user_id"] = "550E8400-E29B-41D4-A716-446655440099"
	upper["employment_status"] = "Self-Employed"
	upper["credit_score"] = "900"
	upper["age"] = "18"
	if errs := Validate(upper); len(errs) != 0 {
		t.Fatalf("expected boundary values to pass, got %v", errs)
	}
}

func TestValidateRejectsEachRule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		field string
		value string
		want  string
	}{
		{field: "user_id", value: "550e8400e29b41d4a716446655440099", want: "Invalid user_id format (must be UUID)"},
		{field: "user_id", value: "{550e8400-e29b-41d4-a716-446655440099}", want: "Invalid user_id format (must be UUID)"},
		{field: "monthly_income", value: "0", want: "monthly_income must be a positive number"},
		{field: "monthly_income", value: "12.5", want: "monthly_income must be a positive number"},
		{field: "credit_score", value: "950", want: "credit_score must be between 300 and 900"},
		{field: "credit_score", value: "299", want: "credit_score must be between 300 and 900"},
		{field: "age", value: "17", want: "age must be between 18 and 100"},
		{field: "age", value: "101", want: "age must be between 18 and 100"},
		{field: "employment_status", value: "salaried", want: "employment_status must be one of: Salaried, Self-Employed, Business"},
		{field: "email", value: "jane.example.com", want: "Invalid email format"},
		{field: "email", value: "", want: "Invalid email format"},
	}

	for _, tc := range cases {
		t.Run(tc.field+"="+tc.value, func(t *testing.T) {
			t.Parallel()
			row := validRow()
			row[tc.field] = tc.value
			errs := Validate(row)
			if len(errs) != 1 || errs[0] != tc.want {
				t.Fatalf("errors = %v, want [%s]", errs, tc.want)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	t.Parallel()

	errs := Validate(map[string]string{})
	if len(errs) != 6 {
		t.Fatalf("expected 6 errors for empty row, got %d: %v", len(errs), errs)
	}
}

func TestValidateRowFlagsFieldCount(t *testing.T) {
	t.Parallel()

	row := RawRow{Number: 1, Values: validRow(), FieldCount: 8}
	errs := ValidateRow(row, 7)
	if len(errs) != 1 || !strings.Contains(errs[0], "row has 8 fields, expected 7") {
		t.Fatalf("unexpected errors %v", errs)
	}
}

func TestValidateRowRejectsUnstorableText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		field string
		value string
		want  string
	}{
		{name: "invalid utf8 name", field: "name", value: "Jane\xffDoe", want: "name contains invalid UTF-8 or NUL characters"},
		{name: "nul in email", field: "email", value: "jane\x00@x.com", want: "email contains invalid UTF-8 or NUL characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			values := validRow()
			values[tc.field] = tc.value
			errs := ValidateRow(RawRow{Number: 1, Values: values, FieldCount: 7}, 7)
			if len(errs) != 1 || errs[0] != tc.want {
				t.Fatalf("errors = %v, want [%s]", errs, tc.want)
			}

			clean := SanitizeValues(values)
			if !utf8.ValidString(clean[tc.field]) || strings.ContainsRune(clean[tc.field], 0) {
				t.Fatalf("sanitized %s still unstorable: %q", tc.field, clean[tc.field])
			}
			if clean["user_id"] != values["user_id"] {
				t.Fatalf("valid fields must be kept as is")
			}
		})
	}
}
