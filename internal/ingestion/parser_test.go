package ingestion

import (
	"errors"
	"testing"
)

func TestParseCSVNormalisesInput(t *testing.T) {
	t.Parallel()

	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(" User_ID ,NAME,Email,monthly_income,credit_score,employment_status,AGE\r\n"+
		"\r\n"+
		"550e8400-e29b-41d4-a716-446655440099, Jane Doe ,jane@x.com,80000,750,Salaried,30\r\n"+
		"   \n"+
		"a,b\n")...)

	parsed, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if parsed.Header[0] != "user_id" || parsed.Header[6] != "age" {
		t.Fatalf("unexpected header %v", parsed.Header)
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(parsed.Rows))
	}

	first := parsed.Rows[0]
	if first.Number != 1 || first.FieldCount != 7 {
		t.Fatalf("unexpected first row %+v", first)
	}
	if first.Values["name"] != "Jane Doe" {
		t.Fatalf("expected trimmed name, got %q", first.Values["name"])
	}

	second := parsed.Rows[1]
	if second.Number != 2 || second.FieldCount != 2 {
		t.Fatalf("unexpected second row %+v", second)
	}
}

func TestParseCSVErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want string
	}{
		{
			name: "empty",
			data: "",
			want: "CSV must have header and at least one data row",
		},
		{
			name: "header only",
			data: "user_id,name,email,monthly_income,credit_score,employment_status,age\n\n",
			want: "CSV must have header and at least one data row",
		},
		{
			name: "missing credit score",
			data: "user_id,name,email,monthly_income,employment_status,age\nx,y,z,1,Salaried,30\n",
			want: "missing required columns: credit_score",
		},
		{
			name: "missing several",
			data: "user_id,name\nx,y\n",
			want: "missing required columns: email, monthly_income, credit_score, employment_status, age",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCSV([]byte(tc.data))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrMalformedInput) {
				t.Fatalf("expected ErrMalformedInput, got %v", err)
			}
			if err.Error() != tc.want {
				t.Fatalf("error = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}
