package jobstatus

import (
	"context"
	"fmt"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// View is the status document returned to pollers.
type View struct {
	domain.Job
	MatchStats *domain.MatchStats `json:"match_stats,omitempty"`
}

// Projector serves job status views backed by the job store. Only terminal views
// are cached: a view read while the job is still moving can be overtaken by an
// Invalidate that lands before the Add.
type Projector struct {
	jobs    repository.JobRepository
	matches repository.MatchRepository
	cache   *lru.Cache[uuid.UUID, View]
}

// NewProjector builds a projector holding at most size views.
func NewProjector(jobs repository.JobRepository, matches repository.MatchRepository, size int) (*Projector, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[uuid.UUID, View](size)
	if err != nil {
		return nil, fmt.Errorf("create status cache: %w", err)
	}
	return &Projector{jobs: jobs, matches: matches, cache: cache}, nil
}

// Get returns the current view of a job. Non-terminal jobs are always read from the store.
func (p *Projector) Get(ctx context.Context, id uuid.UUID) (View, error) {
	if view, ok := p.cache.Get(id); ok {
		return view, nil
	}

	job, err := p.jobs.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}

	view := View{Job: job}
	if job.Status == domain.JobStatusCompleted {
		stats, err := p.matches.Stats(ctx, id)
		if err != nil {
			return View{}, fmt.Errorf("load match stats: %w", err)
		}
		view.MatchStats = &stats
	}

	if job.Status.Terminal() {
		p.cache.Add(id, view)
	}
	return view, nil
}

// Invalidate drops the cached view so the next Get reads the store.
func (p *Projector) Invalidate(id uuid.UUID) {
	p.cache.Remove(id)
}

// Len reports how many views are cached.
func (p *Projector) Len() int {
	return p.cache.Len()
}
