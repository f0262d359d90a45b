package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"
	"github.com/rpattn/eligibility/internal/repository/memory"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func completedJob(t *testing.T, store *memory.Store) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	job, err := store.Jobs.Create(ctx, domain.NewJob(uuid.New(), "batch.csv"))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	steps := []domain.JobStatus{
		domain.JobStatusParsing,
		domain.JobStatusValidating,
		domain.JobStatusStaging,
		domain.JobStatusLoaded,
		domain.JobStatusMatching,
		domain.JobStatusCompleted,
	}
	from := domain.JobStatusUploaded
	for _, to := range steps {
		if err := store.Jobs.Transition(ctx, job.ID, from, to, repository.JobUpdate{}); err != nil {
			t.Fatalf("transition %s -> %s: %v", from, to, err)
		}
		from = to
	}

	user := domain.User{UserID: uuid.New(), Name: "Jane Doe", Email: "jane@x.com", BatchID: job.ID}
	if _, err := store.Users.UpsertBatch(ctx, []domain.User{user}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	_, err = store.Matches.InsertBatch(ctx, []domain.Match{
		{BatchID: job.ID, UserID: user.UserID, ProductID: uuid.New(), MatchScore: 70},
		{BatchID: job.ID, UserID: user.UserID, ProductID: uuid.New(), MatchScore: 81},
	})
	if err != nil {
		t.Fatalf("seed matches: %v", err)
	}
	return job.ID
}

func TestProjectorIncludesMatchStatsWhenCompleted(t *testing.T) {
	store := memory.NewStore()
	jobID := completedJob(t, store)

	projector, err := NewProjector(store.Jobs, store.Matches, 4)
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}

	view, err := projector.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	if view.MatchStats == nil {
		t.Fatalf("expected match stats")
	}
	if view.MatchStats.TotalMatches != 2 || view.MatchStats.UsersMatched != 1 || view.MatchStats.AvgScore != 75.5 {
		t.Fatalf("unexpected stats %+v", view.MatchStats)
	}
}

func TestProjectorCachesOnlyTerminalViews(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	job, err := store.Jobs.Create(ctx, domain.NewJob(uuid.New(), "batch.csv"))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	projector, err := NewProjector(store.Jobs, store.Matches, 4)
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}

	first, err := projector.Get(ctx, job.ID)
	if err != nil || first.Status != domain.JobStatusUploaded {
		t.Fatalf("unexpected first view %+v (%v)", first, err)
	}
	if first.MatchStats != nil {
		t.Fatalf("match stats must be absent before completion")
	}
	if projector.Len() != 0 {
		t.Fatalf("non-terminal views must not be cached")
	}

	// Written without an Invalidate call: the next read still sees it.
	if err := store.Jobs.Transition(ctx, job.ID, domain.JobStatusUploaded, domain.JobStatusParsing, repository.JobUpdate{}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	moving, err := projector.Get(ctx, job.ID)
	if err != nil || moving.Status != domain.JobStatusParsing {
		t.Fatalf("expected PARSING, got %+v (%v)", moving, err)
	}

	if err := store.Jobs.MarkFailed(ctx, job.ID, "job cancelled"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	failed, err := projector.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get failed view: %v", err)
	}
	if failed.Status != domain.JobStatusFailed || failed.ErrorMessage == nil || *failed.ErrorMessage != "job cancelled" {
		t.Fatalf("unexpected failed view %+v", failed)
	}
	if projector.Len() != 1 {
		t.Fatalf("terminal view should be cached, len=%d", projector.Len())
	}

	projector.Invalidate(job.ID)
	if projector.Len() != 0 {
		t.Fatalf("invalidate should drop the cached view")
	}
}

// transitioningJobs commits the final transition and invalidates the projector
// while a read is in flight, after the old record has been loaded.
type transitioningJobs struct {
	repository.JobRepository
	projector *Projector
	fired     bool
}

func (r *transitioningJobs) GetByID(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	job, err := r.JobRepository.GetByID(ctx, id)
	if err != nil || r.fired {
		return job, err
	}
	r.fired = true
	if err := r.JobRepository.Transition(ctx, id, domain.JobStatusMatching, domain.JobStatusCompleted, repository.JobUpdate{}); err != nil {
		return domain.Job{}, err
	}
	r.projector.Invalidate(id)
	return job, nil
}

func TestProjectorDoesNotKeepViewOvertakenByInvalidate(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	job, err := store.Jobs.Create(ctx, domain.NewJob(uuid.New(), "batch.csv"))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	from := domain.JobStatusUploaded
	for from != domain.JobStatusMatching {
		to, _ := from.Next()
		if err := store.Jobs.Transition(ctx, job.ID, from, to, repository.JobUpdate{}); err != nil {
			t.Fatalf("transition %s -> %s: %v", from, to, err)
		}
		from = to
	}

	jobs := &transitioningJobs{JobRepository: store.Jobs}
	projector, err := NewProjector(jobs, store.Matches, 4)
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}
	jobs.projector = projector

	stale, err := projector.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if stale.Status != domain.JobStatusMatching {
		t.Fatalf("expected the in-flight read to return MATCHING, got %s", stale.Status)
	}

	current, err := projector.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if current.Status != domain.JobStatusCompleted || current.MatchStats == nil {
		t.Fatalf("expected COMPLETED with match stats, got %s (stats %v)", current.Status, current.MatchStats)
	}
}

func TestProjectorUnknownJob(t *testing.T) {
	store := memory.NewStore()
	projector, err := NewProjector(store.Jobs, store.Matches, 0)
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}
	if _, err := projector.Get(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if projector.Len() != 0 {
		t.Fatalf("misses must not be cached")
	}
}

func TestHTTPStatusAndDetails(t *testing.T) {
	store := memory.NewStore()
	jobID := completedJob(t, store)
	projector, err := NewProjector(store.Jobs, store.Matches, 4)
	if err != nil {
		t.Fatalf("new projector: %v", err)
	}
	handler := NewHTTPHandler(projector, store.Users, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload["status"] != "COMPLETED" || payload["job_id"] != jobID.String() {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["match_stats"]; !ok {
		t.Fatalf("expected match_stats in payload")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/details", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("details code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"match_count": 2`) || !strings.Contains(rec.Body.String(), `"best_match_score": 81`) {
		t.Fatalf("unexpected details body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString()+"/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job code = %d", rec.Code)
	}
}
