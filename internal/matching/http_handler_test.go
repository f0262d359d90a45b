package matching

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/middleware"
	"github.com/rpattn/eligibility/internal/repository/memory"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestHTTPUserMatchesOrderedWithProductTerms(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	low := sampleProduct()
	low.ProductName = "Starter"
	low.InterestRateMin = 11.5
	high := sampleProduct()
	high.ProductName = "Gold"
	if _, err := store.Products.Upsert(ctx, []domain.LoanProduct{low, high}); err != nil {
		t.Fatalf("seed products: %v", err)
	}

	userID := uuid.New()
	_, err := store.Matches.InsertBatch(ctx, []domain.Match{
		{BatchID: uuid.New(), UserID: userID, ProductID: low.ID, MatchScore: 60.2},
		{BatchID: uuid.New(), UserID: userID, ProductID: high.ID, MatchScore: 88.4},
	})
	if err != nil {
		t.Fatalf("seed matches: %v", err)
	}

	handler := middleware.DataLoaderMiddleware(store.Products)(NewHTTPHandler(store.Matches, store.Products, zap.NewNop()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/"+userID.String()+"/matches", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Matches []MatchView `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(payload.Matches))
	}
	if payload.Matches[0].ProductName != "Gold" || payload.Matches[1].ProductName != "Starter" {
		t.Fatalf("unexpected order %+v", payload.Matches)
	}
	if payload.Matches[1].InterestRateMin != 11.5 {
		t.Fatalf("expected product terms to be joined, got %+v", payload.Matches[1])
	}
}

func TestHTTPUserMatchesRejectsBadID(t *testing.T) {
	store := memory.NewStore()
	handler := NewHTTPHandler(store.Matches, store.Products, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/nope/matches", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
