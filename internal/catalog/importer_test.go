package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/eligibility/internal/repository/memory"

	"go.uber.org/zap"
)

const validCatalog = `[
  {
    "provider_name": "Acme Finance",
    "product_name": "Personal Loan",
    "interest_rate_min": 10.5,
    "interest_rate_max": 14,
    "loan_amount_min": 50000,
    "loan_amount_max": 500000,
    "processing_fee_percent": 1.5,
    "min_monthly_income": 50000,
    "min_credit_score": 700,
    "max_credit_score": 900,
    "min_age": 21,
    "max_age": 60
  },
  {
    "provider_name": "Beta Bank",
    "product_name": "Starter",
    "min_monthly_income": 20000,
    "min_credit_score": 600,
    "max_credit_score": 750,
    "min_age": 18,
    "max_age": 45,
    "is_active": false
  }
]`

func TestImportUpsertsProducts(t *testing.T) {
	store := memory.NewStore()
	importer, err := NewImporter(store.Products, zap.NewNop())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}

	n, err := importer.Import(context.Background(), []byte(validCatalog))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 products, got %d", n)
	}

	active, err := store.Products.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ProductName != "Personal Loan" || active[0].ProcessingFeePercent != 1.5 {
		t.Fatalf("unexpected active products %+v", active)
	}

	if _, err := importer.Import(context.Background(), []byte(validCatalog)); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	active, _ = store.Products.ListActive(context.Background())
	if len(active) != 1 {
		t.Fatalf("re-import must update in place, got %d active", len(active))
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	importer, err := NewImporter(memory.NewStore().Products, nil)
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}

	cases := []struct {
		name string
		doc  string
		want string
	}{
		{name: "not json", doc: `{`, want: ""},
		{name: "empty list", doc: `[]`, want: ""},
		{name: "missing field", doc: `[{"provider_name":"A","product_name":"B"}]`, want: ""},
		{name: "credit out of range", doc: `[{"provider_name":"A","product_name":"B","min_monthly_income":1,"min_credit_score":250,"max_credit_score":900,"min_age":18,"max_age":60}]`, want: ""},
		{name: "inverted age band", doc: `[{"provider_name":"A","product_name":"B","min_monthly_income":1,"min_credit_score":300,"max_credit_score":900,"min_age":60,"max_age":18}]`, want: "min_age exceeds max_age"},
		{name: "duplicate", doc: `[` +
			`{"provider_name":"A","product_name":"B","min_monthly_income":1,"min_credit_score":300,"max_credit_score":900,"min_age":18,"max_age":60},` +
			`{"provider_name":"a","product_name":"b","min_monthly_income":1,"min_credit_score":300,"max_credit_score":900,"min_age":18,"max_age":60}]`, want: "duplicate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := importer.Parse([]byte(tc.doc))
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}
