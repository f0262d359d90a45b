package matching

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/middleware"
	"github.com/rpattn/eligibility/internal/productloader"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler lists a user's matches joined with the product terms.
type Handler struct {
	matches  repository.MatchRepository
	products repository.ProductRepository
	logger   *zap.Logger
	mux      *http.ServeMux
}

func NewHTTPHandler(matches repository.MatchRepository, products repository.ProductRepository, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{matches: matches, products: products, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/users/{userId}/matches", h.handleUserMatches)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// MatchView is a match with the product details needed to present it.
type MatchView struct {
	domain.Match
	ProviderName         string  `json:"provider_name"`
	ProductName          string  `json:"product_name"`
	InterestRateMin      float64 `json:"interest_rate_min"`
	InterestRateMax      float64 `json:"interest_rate_max"`
	LoanAmountMin        int64   `json:"loan_amount_min"`
	LoanAmountMax        int64   `json:"loan_amount_max"`
	ProcessingFeePercent float64 `json:"processing_fee_percent"`
}

func (h *Handler) handleUserMatches(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(strings.TrimSpace(r.PathValue("userId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid user id: %v", err), http.StatusBadRequest)
		return
	}

	matches, err := h.matches.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list user matches", zap.String("user_id", userID.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	loader := middleware.ProductLoaderFromContext(r.Context())
	if loader == nil {
		loader = productloader.NewProductLoader(h.products)
	}

	ids := make([]uuid.UUID, len(matches))
	for i, m := range matches {
		ids[i] = m.ProductID
	}
	products, err := loader.LoadMany(r.Context(), ids)
	if err != nil {
		h.logger.Error("load match products", zap.String("user_id", userID.String()), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		view := MatchView{Match: m}
		if p, ok := products[m.ProductID]; ok {
			view.ProviderName = p.ProviderName
			view.ProductName = p.ProductName
			view.InterestRateMin = p.InterestRateMin
			view.InterestRateMax = p.InterestRateMax
			view.LoanAmountMin = p.LoanAmountMin
			view.LoanAmountMax = p.LoanAmountMax
			view.ProcessingFeePercent = p.ProcessingFeePercent
		}
		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"user_id": userID,
		"matches": views,
	})
}
