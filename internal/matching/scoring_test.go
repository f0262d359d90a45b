package matching

import (
	"testing"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
)

func sampleProduct() domain.LoanProduct {
	return domain.LoanProduct{
		ID:               uuid.New(),
		ProviderName:     "Acme Finance",
		ProductName:      "Personal Loan",
		MinMonthlyIncome: 50000,
		MinCreditScore:   700,
		MaxCreditScore:   900,
		MinAge:           21,
		MaxAge:           60,
		IsActive:         true,
	}
}

func sampleUser() domain.User {
	return domain.User{
		UserID:           uuid.MustParse("550e8400-e29b-41d4-a716-446655440099"),
		Name:             "Jane Doe",
		Email:            "jane@x.com",
		MonthlyIncome:    80000,
		CreditScore:      750,
		EmploymentStatus: domain.EmploymentSalaried,
		Age:              30,
	}
}

func TestScoreReferenceApplicant(t *testing.T) {
	t.Parallel()

	got := Score(sampleUser(), sampleProduct())
	if !got.Eligible {
		t.Fatalf("expected eligible result, got %+v", got)
	}
	if got.IncomeFit != 80 {
		t.Fatalf("income fit = %v, want 80", got.IncomeFit)
	}
	if got.CreditFit != 62.5 {
		t.Fatalf("credit fit = %v, want 62.5", got.CreditFit)
	}
	if got.ProfileFit != 73.08 {
		t.Fatalf("profile fit = %v, want 73.08", got.ProfileFit)
	}
	if got.Score != 71.9 {
		t.Fatalf("score = %v, want 71.9", got.Score)
	}
}

func TestScoreHardBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*domain.User)
	}{
		{name: "income below minimum", mutate: func(u *domain.User) { u.MonthlyIncome = 49999 }},
		{name: "credit below band", mutate: func(u *domain.User) { u.CreditScore = 699 }},
		{name: "too young", mutate: func(u *domain.User) { u.Age = 20 }},
		{name: "too old", mutate: func(u *domain.User) { u.Age = 61 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			user := sampleUser()
			tc.mutate(&user)
			got := Score(user, sampleProduct())
			if got.Eligible || got.Score != 0 {
				t.Fatalf("expected ineligible result, got %+v", got)
			}
		})
	}
}

func TestScoreMonotonicInIncomeAndCredit(t *testing.T) {
	t.Parallel()

	product := sampleProduct()
	prev := -1.0
	for income := int64(50000); income <= 150000; income += 5000 {
		user := sampleUser()
		user.MonthlyIncome = income
		got := Score(user, product).Score
		if got < prev {
			t.Fatalf("score decreased from %v to %v at income %d", prev, got, income)
		}
		prev = got
	}

	prev = -1.0
	for cs := 700; cs <= 900; cs += 10 {
		user := sampleUser()
		user.CreditScore = cs
		got := Score(user, product).Score
		if got < prev {
			t.Fatalf("score decreased from %v to %v at credit score %d", prev, got, cs)
		}
		prev = got
	}
}

func TestScoreMonotonicTowardAgeCentre(t *testing.T) {
	t.Parallel()

	product := sampleProduct() // ages 21..60, centre 40.5
	score := func(age int) float64 {
		user := sampleUser()
		user.Age = age
		return Score(user, product).Score
	}

	prev := -1.0
	for age := 21; age <= 40; age++ {
		got := score(age)
		if got < prev {
			t.Fatalf("score decreased from %v to %v moving up to age %d", prev, got, age)
		}
		prev = got
	}

	prev = -1.0
	for age := 60; age >= 41; age-- {
		got := score(age)
		if got < prev {
			t.Fatalf("score decreased from %v to %v moving down to age %d", prev, got, age)
		}
		prev = got
	}

	if score(21) >= score(40) || score(60) >= score(41) {
		t.Fatalf("band edges should score below the centre")
	}
}

func TestSubScores(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "income at minimum", got: IncomeFit(50000, 50000), want: 50},
		{name: "income capped", got: IncomeFit(500000, 50000), want: 100},
		{name: "no income floor", got: IncomeFit(1, 0), want: 100},
		{name: "credit floor", got: CreditFit(700, 700, 900), want: 50},
		{name: "credit ceiling", got: CreditFit(900, 700, 900), want: 100},
		{name: "credit single point", got: CreditFit(750, 750, 750), want: 100},
		{name: "credit outside", got: CreditFit(901, 700, 900), want: 0},
		{name: "age centre", got: ProfileFit(40, 20, 60), want: 100},
		{name: "age edge", got: ProfileFit(60, 20, 60), want: 50},
		{name: "age single point", got: ProfileFit(30, 30, 30), want: 100},
		{name: "age outside", got: ProfileFit(19, 20, 60), want: 0},
	}

	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestEvaluateAppliesThresholdAndActiveFlag(t *testing.T) {
	t.Parallel()

	batchID := uuid.New()
	active := sampleProduct()
	inactive := sampleProduct()
	inactive.IsActive = false

	matches := Evaluate(batchID, sampleUser(), []domain.LoanProduct{active, inactive}, 0)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ProductID != active.ID || matches[0].BatchID != batchID {
		t.Fatalf("unexpected match %+v", matches[0])
	}

	if got := Evaluate(batchID, sampleUser(), []domain.LoanProduct{active}, 90); len(got) != 0 {
		t.Fatalf("expected threshold to drop match, got %d", len(got))
	}
}
