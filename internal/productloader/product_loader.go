package productloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// ProductLoader batches product lookups issued while rendering one request.
type ProductLoader struct {
	Loader *dataloader.Loader
}

func NewProductLoader(repo repository.ProductRepository) *ProductLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return errorResults(len(keys), fmt.Errorf("invalid UUID: %w", err))
			}
			ids[i] = id
		}

		products, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			return errorResults(len(keys), err)
		}

		productMap := make(map[uuid.UUID]domain.LoanProduct, len(products))
		for _, p := range products {
			productMap[p.ID] = p
		}

		// Results must line up with keys.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if p, ok := productMap[id]; ok {
				results[i] = &dataloader.Result{Data: p}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &ProductLoader{Loader: loader}
}

// Load resolves one product. The boolean is false when the product does not exist.
func (l *ProductLoader) Load(ctx context.Context, id uuid.UUID) (domain.LoanProduct, bool, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id.String()))()
	if err != nil {
		return domain.LoanProduct{}, false, err
	}
	product, ok := data.(domain.LoanProduct)
	return product, ok, nil
}

// LoadMany resolves several products in one batch, skipping unknown ids.
func (l *ProductLoader) LoadMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.LoanProduct, error) {
	thunks := make([]dataloader.Thunk, len(ids))
	for i, id := range ids {
		thunks[i] = l.Loader.Load(ctx, dataloader.StringKey(id.String()))
	}

	out := make(map[uuid.UUID]domain.LoanProduct, len(ids))
	for i, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		if product, ok := data.(domain.LoanProduct); ok {
			out[ids[i]] = product
		}
	}
	return out, nil
}

func errorResults(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}
