// Package memory holds process-local repository implementations used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
)

var (
	_ repository.JobRepository     = (*Jobs)(nil)
	_ repository.StagingRepository = (*Staging)(nil)
	_ repository.UserRepository    = (*Users)(nil)
	_ repository.ProductRepository = (*Products)(nil)
	_ repository.MatchRepository   = (*Matches)(nil)
)

// Store bundles one instance of every repository sharing the same data.
type Store struct {
	Jobs     *Jobs
	Staging  *Staging
	Users    *Users
	Products *Products
	Matches  *Matches
}

func NewStore() *Store {
	matches := &Matches{byKey: map[matchKey]domain.Match{}}
	return &Store{
		Jobs:     &Jobs{jobs: map[uuid.UUID]domain.Job{}},
		Staging:  &Staging{rows: map[uuid.UUID][]domain.StagedRow{}},
		Users:    &Users{users: map[uuid.UUID]domain.User{}, matches: matches},
		Products: &Products{products: map[uuid.UUID]domain.LoanProduct{}},
		Matches:  matches,
	}
}

type Jobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.Job
}

func (r *Jobs) Create(_ context.Context, job domain.Job) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if existing, ok := r.jobs[job.ID]; ok {
		return existing, nil
	}
	if job.Status == "" {
		job.Status = domain.JobStatusUploaded
	}
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	r.jobs[job.ID] = job
	return job, nil
}

func (r *Jobs) GetByID(_ context.Context, id uuid.UUID) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("get ingestion job %s: %w", id, repository.ErrNotFound)
	}
	return job, nil
}

func (r *Jobs) Transition(_ context.Context, id uuid.UUID, from, to domain.JobStatus, update repository.JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != from || !from.CanTransition(to) || to == domain.JobStatusFailed {
		return fmt.Errorf("%w: %s -> %s", repository.ErrJobStatusConflict, from, to)
	}

	now := time.Now()
	job.Status = to
	if update.TotalRows != nil {
		job.TotalRows = *update.TotalRows
	}
	if update.MergedUsers != nil {
		job.MergedUsers = *update.MergedUsers
	}
	if update.MatchesCreated != nil {
		job.MatchesCreated = *update.MatchesCreated
	}
	switch to {
	case domain.JobStatusParsing:
		job.StartedAt = &now
	case domain.JobStatusCompleted:
		job.CompletedAt = &now
	}
	job.UpdatedAt = now
	r.jobs[id] = job
	return nil
}

func (r *Jobs) UpdateCounters(_ context.Context, id uuid.UUID, counters domain.JobCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.ProcessedRows = counters.ProcessedRows
	job.ValidRows = counters.ValidRows
	job.InvalidRows = counters.InvalidRows
	job.UpdatedAt = time.Now()
	r.jobs[id] = job
	return nil
}

func (r *Jobs) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return repository.ErrJobStatusConflict
	}
	now := time.Now()
	msg := errorMessage
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = &msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	r.jobs[id] = job
	return nil
}

type Staging struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]domain.StagedRow
}

func (r *Staging) InsertBatch(_ context.Context, rows []domain.StagedRow) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, row := range rows {
		row.CreatedAt = now
		row.Errors = append([]string{}, row.Errors...)
		r.rows[row.JobID] = append(r.rows[row.JobID], row)
	}
	return len(rows), nil
}

func (r *Staging) ListValid(_ context.Context, jobID uuid.UUID) ([]domain.StagedRow, error) {
	return r.filter(jobID, true), nil
}

func (r *Staging) ListInvalid(_ context.Context, jobID uuid.UUID, limit, offset int) ([]domain.StagedRow, error) {
	rows := r.filter(jobID, false)
	if offset >= len(rows) {
		return []domain.StagedRow{}, nil
	}
	rows = rows[max(offset, 0):]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *Staging) CountByJob(_ context.Context, jobID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[jobID]), nil
}

func (r *Staging) filter(jobID uuid.UUID, valid bool) []domain.StagedRow {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.StagedRow{}
	for _, row := range r.rows[jobID] {
		if row.IsValid == valid {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

type Users struct {
	mu      sync.Mutex
	users   map[uuid.UUID]domain.User
	matches *Matches
}

// UpsertBatch counts a row only when it is new or any field differs, mirroring the SQL upsert.
func (r *Users) UpsertBatch(_ context.Context, users []domain.User) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	now := time.Now()
	for _, user := range users {
		existing, ok := r.users[user.UserID]
		if ok && sameUser(existing, user) {
			continue
		}
		if ok {
			user.CreatedAt = existing.CreatedAt
		} else {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		r.users[user.UserID] = user
		changed++
	}
	return changed, nil
}

func (r *Users) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *Users) ListBatchSummaries(ctx context.Context, batchID uuid.UUID) ([]domain.BatchUserSummary, error) {
	r.mu.Lock()
	summaries := []domain.BatchUserSummary{}
	for _, user := range r.users {
		if user.BatchID == batchID {
			summaries = append(summaries, domain.BatchUserSummary{UserID: user.UserID, Name: user.Name, Email: user.Email})
		}
	}
	r.mu.Unlock()

	batchMatches, err := r.matches.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		for _, match := range batchMatches {
			if match.UserID != summaries[i].UserID {
				continue
			}
			summaries[i].MatchCount++
			if summaries[i].BestMatchScore == nil || match.MatchScore > *summaries[i].BestMatchScore {
				score := match.MatchScore
				summaries[i].BestMatchScore = &score
			}
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.MatchCount != b.MatchCount {
			return a.MatchCount > b.MatchCount
		}
		if best := bestScore(a); best != bestScore(b) {
			return best > bestScore(b)
		}
		return a.UserID.String() < b.UserID.String()
	})
	return summaries, nil
}

// bestScore sorts users without matches last, like NULLS LAST.
func bestScore(s domain.BatchUserSummary) float64 {
	if s.BestMatchScore == nil {
		return -1
	}
	return *s.BestMatchScore
}

func sameUser(a, b domain.User) bool {
	return a.Name == b.Name &&
		a.Email == b.Email &&
		a.MonthlyIncome == b.MonthlyIncome &&
		a.CreditScore == b.CreditScore &&
		a.EmploymentStatus == b.EmploymentStatus &&
		a.Age == b.Age &&
		a.BatchID == b.BatchID
}

type Products struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.LoanProduct
}

func (r *Products) ListActive(_ context.Context) ([]domain.LoanProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.LoanProduct{}
	for _, product := range r.products {
		if product.IsActive {
			out = append(out, product)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderName != out[j].ProviderName {
			return out[i].ProviderName < out[j].ProviderName
		}
		return out[i].ProductName < out[j].ProductName
	})
	return out, nil
}

func (r *Products) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.LoanProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.LoanProduct, 0, len(ids))
	for _, id := range ids {
		if product, ok := r.products[id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

func (r *Products) Upsert(_ context.Context, products []domain.LoanProduct) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, product := range products {
		for id, existing := range r.products {
			if existing.ProviderName == product.ProviderName && existing.ProductName == product.ProductName {
				product.ID = id
				product.CreatedAt = existing.CreatedAt
			}
		}
		if product.ID == uuid.Nil {
			product.ID = uuid.New()
		}
		if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		product.UpdatedAt = now
		r.products[product.ID] = product
	}
	return len(products), nil
}

type matchKey struct {
	batchID   uuid.UUID
	userID    uuid.UUID
	productID uuid.UUID
}

type Matches struct {
	mu    sync.Mutex
	byKey map[matchKey]domain.Match
}

func (r *Matches) InsertBatch(_ context.Context, matches []domain.Match) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	now := time.Now()
	for _, match := range matches {
		key := matchKey{batchID: match.BatchID, userID: match.UserID, productID: match.ProductID}
		if _, ok := r.byKey[key]; ok {
			continue
		}
		if match.ID == uuid.Nil {
			match.ID = uuid.New()
		}
		match.CreatedAt = now
		r.byKey[key] = match
		inserted++
	}
	return inserted, nil
}

func (r *Matches) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Match, error) {
	return r.list(func(m domain.Match) bool { return m.UserID == userID }), nil
}

func (r *Matches) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.Match, error) {
	return r.list(func(m domain.Match) bool { return m.BatchID == batchID }), nil
}

func (r *Matches) Stats(ctx context.Context, batchID uuid.UUID) (domain.MatchStats, error) {
	matches, _ := r.ListByBatch(ctx, batchID)
	stats := domain.MatchStats{TotalMatches: len(matches)}
	if len(matches) == 0 {
		return stats, nil
	}
	users := map[uuid.UUID]struct{}{}
	sum := 0.0
	for _, match := range matches {
		users[match.UserID] = struct{}{}
		sum += match.MatchScore
	}
	stats.UsersMatched = len(users)
	stats.AvgScore = roundTenth(sum / float64(len(matches)))
	return stats, nil
}

func (r *Matches) list(keep func(domain.Match) bool) []domain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.Match{}
	for _, match := range r.byKey {
		if keep(match) {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
