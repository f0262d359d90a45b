package memory

import (
	"context"
	"testing"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
)

func TestBatchSummariesOrderedByMatches(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	batchID := uuid.New()

	none := domain.User{UserID: uuid.New(), Name: "Aaron", BatchID: batchID}
	one := domain.User{UserID: uuid.New(), Name: "Bea", BatchID: batchID}
	twoLow := domain.User{UserID: uuid.New(), Name: "Cy", BatchID: batchID}
	twoHigh := domain.User{UserID: uuid.New(), Name: "Di", BatchID: batchID}
	if _, err := store.Users.UpsertBatch(ctx, []domain.User{none, one, twoLow, twoHigh}); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	match := func(user domain.User, score float64) domain.Match {
		return domain.Match{BatchID: batchID, UserID: user.UserID, ProductID: uuid.New(), MatchScore: score}
	}
	if _, err := store.Matches.InsertBatch(ctx, []domain.Match{
		match(one, 95),
		match(twoLow, 60), match(twoLow, 70),
		match(twoHigh, 60), match(twoHigh, 80),
	}); err != nil {
		t.Fatalf("seed matches: %v", err)
	}

	summaries, err := store.Users.ListBatchSummaries(ctx, batchID)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	want := []string{"Di", "Cy", "Bea", "Aaron"}
	if len(summaries) != len(want) {
		t.Fatalf("expected %d summaries, got %d", len(want), len(summaries))
	}
	for i, name := range want {
		if summaries[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, summaries[i].Name)
		}
	}
	if summaries[3].BestMatchScore != nil || summaries[3].MatchCount != 0 {
		t.Fatalf("user without matches should have no best score: %+v", summaries[3])
	}
}
