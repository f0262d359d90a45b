package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/eligibility/internal/domain"
	"github.com/rpattn/eligibility/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet = "Summary"
	matchesSheet = "Matches"
)

// ErrNotReady is returned for jobs that have not completed yet.
var ErrNotReady = errors.New("job has not completed")

var matchHeaders = []string{
	"User ID",
	"Name",
	"Email",
	"Provider",
	"Product",
	"Match Score",
	"Income Fit",
	"Credit Fit",
	"Profile Fit",
}

// Builder renders a completed job as an xlsx workbook.
type Builder struct {
	jobs     repository.JobRepository
	users    repository.UserRepository
	products repository.ProductRepository
	matches  repository.MatchRepository
	logger   *zap.Logger
}

func NewBuilder(
	jobs repository.JobRepository,
	users repository.UserRepository,
	products repository.ProductRepository,
	matches repository.MatchRepository,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{jobs: jobs, users: users, products: products, matches: matches, logger: logger}
}

// Build returns the workbook bytes for jobID.
func (b *Builder) Build(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, job.Status)
	}

	stats, err := b.matches.Stats(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load match stats: %w", err)
	}
	matches, err := b.matches.ListByBatch(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	users, products, err := b.lookups(ctx, matches)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// The default "Sheet1" becomes the summary.
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(matchesSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if index, _ := f.GetSheetIndex(summarySheet); index >= 0 {
		f.SetActiveSheet(index)
	}

	if err := writeSummary(f, job, stats); err != nil {
		return nil, err
	}

	for i, h := range matchHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(matchesSheet, cell, h)
	}
	for i, m := range matches {
		user := users[m.UserID]
		product := products[m.ProductID]
		values := []any{
			m.UserID.String(),
			user.Name,
			user.Email,
			product.ProviderName,
			product.ProductName,
			m.MatchScore,
			m.IncomeFit,
			m.CreditFit,
			m.ProfileFit,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(matchesSheet, cell, v); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	_ = f.SetColWidth(matchesSheet, "A", "A", 38)
	_ = f.SetColWidth(matchesSheet, "B", "C", 24)
	_ = f.SetColWidth(matchesSheet, "D", "E", 22)
	_ = f.SetColWidth(matchesSheet, "F", "I", 12)
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	b.logger.Info("built job report",
		zap.String("job_id", jobID.String()),
		zap.Int("matches", len(matches)),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

func (b *Builder) lookups(ctx context.Context, matches []domain.Match) (map[uuid.UUID]domain.User, map[uuid.UUID]domain.LoanProduct, error) {
	userIDs := make([]uuid.UUID, 0, len(matches))
	productIDs := make([]uuid.UUID, 0, len(matches))
	seenUsers := make(map[uuid.UUID]struct{})
	seenProducts := make(map[uuid.UUID]struct{})
	for _, m := range matches {
		if _, ok := seenUsers[m.UserID]; !ok {
			seenUsers[m.UserID] = struct{}{}
			userIDs = append(userIDs, m.UserID)
		}
		if _, ok := seenProducts[m.ProductID]; !ok {
			seenProducts[m.ProductID] = struct{}{}
			productIDs = append(productIDs, m.ProductID)
		}
	}

	users := make(map[uuid.UUID]domain.User, len(userIDs))
	if len(userIDs) > 0 {
		list, err := b.users.GetByIDs(ctx, userIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("load users: %w", err)
		}
		for _, u := range list {
			users[u.UserID] = u
		}
	}

	products := make(map[uuid.UUID]domain.LoanProduct, len(productIDs))
	if len(productIDs) > 0 {
		list, err := b.products.GetByIDs(ctx, productIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("load products: %w", err)
		}
		for _, p := range list {
			products[p.ID] = p
		}
	}
	return users, products, nil
}

func writeSummary(f *excelize.File, job domain.Job, stats domain.MatchStats) error {
	completed := ""
	if job.CompletedAt != nil {
		completed = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	rows := [][]any{
		{"Job ID", job.ID.String()},
		{"File", job.FileName},
		{"Status", string(job.Status)},
		{"Total Rows", job.TotalRows},
		{"Valid Rows", job.ValidRows},
		{"Invalid Rows", job.InvalidRows},
		{"Merged Users", job.MergedUsers},
		{"Matches Created", job.MatchesCreated},
		{"Total Matches", stats.TotalMatches},
		{"Users Matched", stats.UsersMatched},
		{"Average Score", stats.AvgScore},
		{"Completed At", completed},
	}
	for i, row := range rows {
		for col, v := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+1)
			if err := f.SetCellValue(summarySheet, cell, v); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}
	return nil
}
