package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/eligibility/internal/productloader"
	"github.com/rpattn/eligibility/internal/repository"
)

type ctxKey string

const productLoaderKey ctxKey = "productLoader"

// DataLoaderMiddleware attaches a request-scoped product loader to the context.
func DataLoaderMiddleware(repo repository.ProductRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := productloader.NewProductLoader(repo)
			ctx := context.WithValue(r.Context(), productLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProductLoaderFromContext retrieves the loader installed by DataLoaderMiddleware.
func ProductLoaderFromContext(ctx context.Context) *productloader.ProductLoader {
	if l, ok := ctx.Value(productLoaderKey).(*productloader.ProductLoader); ok {
		return l
	}
	return nil
}
