package repository

import (
	"bytes"
	"testing"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
)

func TestInLockOrderSortsByUserID(t *testing.T) {
	x := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	y := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	z := uuid.MustParse("7fffffff-0000-0000-0000-000000000000")

	// Two jobs staging the same users in opposite orders must queue them identically.
	forward := []domain.User{{UserID: x}, {UserID: y}, {UserID: z}}
	backward := []domain.User{{UserID: z}, {UserID: y}, {UserID: x}}

	a := inLockOrder(forward)
	b := inLockOrder(backward)
	for i := range a {
		if a[i].UserID != b[i].UserID {
			t.Fatalf("position %d differs: %s vs %s", i, a[i].UserID, b[i].UserID)
		}
		if i > 0 && bytes.Compare(a[i-1].UserID[:], a[i].UserID[:]) >= 0 {
			t.Fatalf("not ascending at %d", i)
		}
	}
	if a[0].UserID != x || a[2].UserID != y {
		t.Fatalf("unexpected order %v", a)
	}
	if forward[0].UserID != x || backward[0].UserID != z {
		t.Fatalf("input slices must not be reordered")
	}
}
