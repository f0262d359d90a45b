package matching

import (
	"math"

	"github.com/rpattn/eligibility/internal/domain"
)

// Breakdown is the per-pair scoring result. Score is only meaningful when Eligible is set.
type Breakdown struct {
	IncomeFit  float64
	CreditFit  float64
	ProfileFit float64
	Score      float64
	Eligible   bool
}

// Score rates how well user fits product. Every sub-score lies in [0, 100] and a
// zero sub-score means a hard bound of the product is violated.
func Score(user domain.User, product domain.LoanProduct) Breakdown {
	b := Breakdown{
		IncomeFit:  round(IncomeFit(user.MonthlyIncome, product.MinMonthlyIncome), 2),
		CreditFit:  round(CreditFit(user.CreditScore, product.MinCreditScore, product.MaxCreditScore), 2),
		ProfileFit: round(ProfileFit(user.Age, product.MinAge, product.MaxAge), 2),
	}
	b.Eligible = b.IncomeFit > 0 && b.CreditFit > 0 && b.ProfileFit > 0
	if b.Eligible {
		b.Score = round((b.IncomeFit+b.CreditFit+b.ProfileFit)/3, 1)
	}
	return b
}

// IncomeFit is 50 at the product minimum and reaches 100 at twice the minimum.
func IncomeFit(income, minIncome int64) float64 {
	if minIncome <= 0 {
		return 100
	}
	if income < minIncome {
		return 0
	}
	return math.Min(100, 50+50*float64(income-minIncome)/float64(minIncome))
}

// CreditFit rises linearly from 50 at the band floor to 100 at its ceiling.
func CreditFit(score, lo, hi int) float64 {
	return bandFit(score, lo, hi)
}

func bandFit(v, lo, hi int) float64 {
	if v < lo || v > hi {
		return 0
	}
	if hi == lo {
		return 100
	}
	return 50 + 50*float64(v-lo)/float64(hi-lo)
}

// ProfileFit peaks at the centre of the age band and falls to 50 at either edge.
func ProfileFit(age, lo, hi int) float64 {
	if age < lo || age > hi {
		return 0
	}
	if hi == lo {
		return 100
	}
	center := float64(lo+hi) / 2
	halfWidth := float64(hi-lo) / 2
	return 100 - 50*math.Abs(float64(age)-center)/halfWidth
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
