package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestJobStatusCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusUploaded, JobStatusParsing, true},
		{JobStatusParsing, JobStatusValidating, true},
		{JobStatusValidating, JobStatusStaging, true},
		{JobStatusStaging, JobStatusLoaded, true},
		{JobStatusLoaded, JobStatusMatching, true},
		{JobStatusMatching, JobStatusCompleted, true},
		{JobStatusUploaded, JobStatusValidating, false},
		{JobStatusStaging, JobStatusParsing, false},
		{JobStatusMatching, JobStatusMatching, false},
		{JobStatusUploaded, JobStatusFailed, true},
		{JobStatusMatching, JobStatusFailed, true},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusFailed, false},
		{JobStatus("UNKNOWN"), JobStatusFailed, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	for _, status := range jobStatusOrder {
		want := status == JobStatusCompleted
		if status.Terminal() != want {
			t.Fatalf("%s terminal = %v, want %v", status, status.Terminal(), want)
		}
	}
	if !JobStatusFailed.Terminal() {
		t.Fatalf("FAILED must be terminal")
	}
	if _, ok := JobStatusCompleted.Next(); ok {
		t.Fatalf("COMPLETED must not have a successor")
	}
}

func TestNewStagedRowValidity(t *testing.T) {
	t.Parallel()

	valid := NewStagedRow(uuid.New(), 1, map[string]string{ColumnName: "Jane"}, nil)
	if !valid.IsValid || valid.Errors == nil || len(valid.Errors) != 0 {
		t.Fatalf("expected valid row with empty error list, got %+v", valid)
	}

	invalid := NewStagedRow(uuid.New(), 2, map[string]string{}, []string{"Invalid email format"})
	if invalid.IsValid {
		t.Fatalf("expected invalid row")
	}
}
