package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

//go:embed products.schema.json
var productSchema []byte

const schemaURL = "products.schema.json"

// ErrInvalidCatalog is returned when the document fails schema or range checks.
var ErrInvalidCatalog = errors.New("invalid product catalog")

type productInput struct {
	ProviderName         string  `json:"provider_name"`
	ProductName          string  `json:"product_name"`
	InterestRateMin      float64 `json:"interest_rate_min"`
	InterestRateMax      float64 `json:"interest_rate_max"`
	LoanAmountMin        int64   `json:"loan_amount_min"`
	LoanAmountMax        int64   `json:"loan_amount_max"`
	ProcessingFeePercent float64 `json:"processing_fee_percent"`
	MinMonthlyIncome     int64   `json:"min_monthly_income"`
	MinCreditScore       int     `json:"min_credit_score"`
	MaxCreditScore       int     `json:"max_credit_score"`
	MinAge               int     `json:"min_age"`
	MaxAge               int     `json:"max_age"`
	IsActive             *bool   `json:"is_active"`
}

// Importer loads loan products from a JSON document into the catalog.
type Importer struct {
	repo   repository.ProductRepository
	schema *jsonschema.Schema
	logger *zap.Logger
}

func NewImporter(repo repository.ProductRepository, logger *zap.Logger) (*Importer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(productSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Importer{repo: repo, schema: schema, logger: logger}, nil
}

// Parse validates the document and returns the products it describes.
func (i *Importer) Parse(data []byte) ([]domain.LoanProduct, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := i.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var inputs []productInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var errs error
	seen := make(map[string]struct{}, len(inputs))
	products := make([]domain.LoanProduct, 0, len(inputs))
	for idx, in := range inputs {
		key := strings.ToLower(in.ProviderName + "/" + in.ProductName)
		if _, dup := seen[key]; dup {
			errs = multierr.Append(errs, fmt.Errorf("product %d: duplicate %s/%s", idx, in.ProviderName, in.ProductName))
			continue
		}
		seen[key] = struct{}{}

		if err := checkRanges(idx, in); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}
		products = append(products, domain.LoanProduct{
			ProviderName:         strings.TrimSpace(in.ProviderName),
			ProductName:          strings.TrimSpace(in.ProductName),
			InterestRateMin:      in.InterestRateMin,
			InterestRateMax:      in.InterestRateMax,
			LoanAmountMin:        in.LoanAmountMin,
			LoanAmountMax:        in.LoanAmountMax,
			ProcessingFeePercent: in.ProcessingFeePercent,
			MinMonthlyIncome:     in.MinMonthlyIncome,
			MinCreditScore:       in.MinCreditScore,
			MaxCreditScore:       in.MaxCreditScore,
			MinAge:               in.MinAge,
			MaxAge:               in.MaxAge,
			IsActive:             active,
		})
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, errs)
	}
	return products, nil
}

// Import validates data and upserts every product it contains.
func (i *Importer) Import(ctx context.Context, data []byte) (int, error) {
	products, err := i.Parse(data)
	if err != nil {
		return 0, err
	}
	written, err := i.repo.Upsert(ctx, products)
	if err != nil {
		return 0, fmt.Errorf("upsert products: %w", err)
	}
	i.logger.Info("imported product catalog", zap.Int("products", len(products)), zap.Int("written", written))
	return len(products), nil
}

func checkRanges(idx int, in productInput) error {
	var errs error
	if in.MinCreditScore > in.MaxCreditScore {
		errs = multierr.Append(errs, fmt.Errorf("product %d: min_credit_score exceeds max_credit_score", idx))
	}
	if in.MinAge > in.MaxAge {
		errs = multierr.Append(errs, fmt.Errorf("product %d: min_age exceeds max_age", idx))
	}
	if in.InterestRateMin > in.InterestRateMax && in.InterestRateMax != 0 {
		errs = multierr.Append(errs, fmt.Errorf("product %d: interest_rate_min exceeds interest_rate_max", idx))
	}
	if in.LoanAmountMin > in.LoanAmountMax && in.LoanAmountMax != 0 {
		errs = multierr.Append(errs, fmt.Errorf("product %d: loan_amount_min exceeds loan_amount_max", idx))
	}
	return errs
}
