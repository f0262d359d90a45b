package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus captures lifecycle state for an ingestion job.
type JobStatus string

const (
	JobStatusUploaded   JobStatus = "UPLOADED"
	JobStatusParsing    JobStatus = "PARSING"
	JobStatusValidating JobStatus = "VALIDATING"
	JobStatusStaging    JobStatus = "STAGING"
	JobStatusLoaded     JobStatus = "LOADED"
	JobStatusMatching   JobStatus = "MATCHING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// jobStatusOrder lists the forward path a job walks through. FAILED sits outside it.
var jobStatusOrder = []JobStatus{
	JobStatusUploaded,
	JobStatusParsing,
	JobStatusValidating,
	JobStatusStaging,
	JobStatusLoaded,
	JobStatusMatching,
	JobStatusCompleted,
}

func (s JobStatus) position() int {
	for i, candidate := range jobStatusOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether the status is a known lifecycle state.
func (s JobStatus) Valid() bool {
	return s == JobStatusFailed || s.position() >= 0
}

// Terminal reports whether no further transition may happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Next returns the status that follows s on the forward path.
func (s JobStatus) Next() (JobStatus, bool) {
	pos := s.position()
	if pos < 0 || pos+1 >= len(jobStatusOrder) {
		return "", false
	}
	return jobStatusOrder[pos+1], true
}

// CanTransition reports whether a job may move from s to next.
// Only single forward steps and FAILED (from any non-terminal state) are allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || !s.Valid() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	following, ok := s.Next()
	return ok && following == next
}

// Job mirrors the persisted ingestion job record.
type Job struct {
	ID             uuid.UUID  `json:"job_id"`
	Status         JobStatus  `json:"status"`
	FileName       string     `json:"file_name,omitempty"`
	TotalRows      int        `json:"total_rows"`
	ProcessedRows  int        `json:"processed_rows"`
	ValidRows      int        `json:"valid_rows"`
	InvalidRows    int        `json:"invalid_rows"`
	MergedUsers    int        `json:"merged_users"`
	MatchesCreated int        `json:"matches_created"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewJob returns a freshly uploaded job.
func NewJob(id uuid.UUID, fileName string) Job {
	now := time.Now()
	return Job{
		ID:        id,
		Status:    JobStatusUploaded,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobCounters carries the row level progress counters of a job.
type JobCounters struct {
	ProcessedRows int `json:"processed_rows"`
	ValidRows     int `json:"valid_rows"`
	InvalidRows   int `json:"invalid_rows"`
}

// MatchStats summarises the matches produced by one job.
type MatchStats struct {
	TotalMatches int     `json:"total_matches"`
	UsersMatched int     `json:"users_matched"`
	AvgScore     float64 `json:"avg_score"`
}
