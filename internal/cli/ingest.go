package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rpattn/eligibility/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.csv>",
	Short: "Run one CSV batch through the pipeline and print the resulting job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		catalogFile, _ := cmd.Flags().GetString("catalog")
		showErrors, _ := cmd.Flags().GetInt("show-errors")

		var b *backend
		if dryRun {
			b = openMemory()
		} else {
			b, err = openPostgres(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
		}
		defer b.Close()

		svc, err := newServices(b, cfg, logger)
		if err != nil {
			return err
		}
		if catalogFile != "" {
			if err := importCatalogFile(cmd.Context(), svc, catalogFile); err != nil {
				return err
			}
		} else if dryRun {
			logger.Warn("dry run without --catalog: no products to match against")
		}

		return runIngest(cmd.Context(), svc, args[0], showErrors, cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("dry-run", false, "process the file in memory without touching the database")
	ingestCmd.Flags().String("catalog", "", "product catalog JSON to import before matching")
	ingestCmd.Flags().Int("show-errors", 10, "number of rejected rows to print")
}

type ingestResult struct {
	Job       domain.Job         `json:"job"`
	Stats     *domain.MatchStats `json:"match_stats,omitempty"`
	Rejected  []rejectedRow      `json:"rejected_rows,omitempty"`
	Truncated bool               `json:"rejected_rows_truncated,omitempty"`
}

type rejectedRow struct {
	RowNumber int      `json:"row_number"`
	UserID    string   `json:"user_id"`
	Errors    []string `json:"errors"`
}

// runIngest registers path as a new upload, processes it synchronously and writes a JSON summary to out.
func runIngest(ctx context.Context, svc *services, path string, showErrors int, out io.Writer, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	job, err := svc.ingestion.RegisterUpload(ctx, filepath.Base(path))
	if err != nil {
		return err
	}
	job, runErr := svc.ingestion.Process(ctx, job.ID, data)
	if job.ID == uuid.Nil {
		return runErr
	}

	result := ingestResult{Job: job}
	view, err := svc.projector.Get(ctx, job.ID)
	if err == nil {
		result.Stats = view.MatchStats
	}
	if showErrors > 0 && job.InvalidRows > 0 {
		rows, err := svc.ingestion.ListInvalidRows(ctx, job.ID, showErrors, 0)
		if err != nil {
			logger.Warn("failed to list rejected rows", zap.Error(err))
		}
		for _, row := range rows {
			result.Rejected = append(result.Rejected, rejectedRow{RowNumber: row.RowNumber, UserID: row.UserID, Errors: row.Errors})
		}
		result.Truncated = job.InvalidRows > len(rows)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	return runErr
}
