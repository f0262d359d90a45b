package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rpattn/eligibility/internal/catalog"
	"github.com/rpattn/eligibility/internal/config"
	"github.com/rpattn/eligibility/internal/db"
	"github.com/rpattn/eligibility/internal/ingestion"
	"github.com/rpattn/eligibility/internal/jobstatus"
	"github.com/rpattn/eligibility/internal/matching"
	"github.com/rpattn/eligibility/internal/merge"
	"github.com/rpattn/eligibility/internal/report"
	"github.com/rpattn/eligibility/internal/repository"
	"github.com/rpattn/eligibility/internal/repository/memory"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// backend bundles the repositories one process works against.
type backend struct {
	jobs     repository.JobRepository
	staging  repository.StagingRepository
	users    repository.UserRepository
	products repository.ProductRepository
	matches  repository.MatchRepository

	pool *pgxpool.Pool
	conn *db.Connection
}

func openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger, migrate bool) (*backend, error) {
	conn, err := db.NewConnection(ctx, cfg.Database.DB(), logger)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.RunMigrations(conn.Pool, logger); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &backend{
		jobs:     repository.NewJobRepository(conn.Pool),
		staging:  repository.NewStagingRepository(conn.Pool),
		users:    repository.NewUserRepository(conn.Pool, logger),
		products: repository.NewProductRepository(conn.Pool, logger),
		matches:  repository.NewMatchRepository(conn.Pool, logger),
		pool:     conn.Pool,
		conn:     conn,
	}, nil
}

func openMemory() *backend {
	store := memory.NewStore()
	return &backend{
		jobs:     store.Jobs,
		staging:  store.Staging,
		users:    store.Users,
		products: store.Products,
		matches:  store.Matches,
	}
}

func (b *backend) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// ping reports whether storage is reachable. The in-memory backend always is.
func (b *backend) ping(ctx context.Context) error {
	if b.pool == nil {
		return nil
	}
	return b.pool.Ping(ctx)
}

// services are the pipeline components built on top of a backend.
type services struct {
	ingestion *ingestion.Service
	projector *jobstatus.Projector
	reports   *report.Builder
	catalog   *catalog.Importer
}

func newServices(b *backend, cfg config.Config, logger *zap.Logger) (*services, error) {
	projector, err := jobstatus.NewProjector(b.jobs, b.matches, cfg.Cache.StatusSize)
	if err != nil {
		return nil, fmt.Errorf("create status projector: %w", err)
	}
	importer, err := catalog.NewImporter(b.products, logger.Named("catalog"))
	if err != nil {
		return nil, err
	}

	merger := merge.NewEngine(b.staging, b.users,
		merge.WithBatchSize(cfg.Pipeline.BatchSize),
		merge.WithStorageTimeout(cfg.Pipeline.StorageTimeout),
		merge.WithLogger(logger.Named("merge")),
	)
	matcher := matching.NewEngine(b.staging, b.users, b.products, b.matches,
		matching.WithWorkers(cfg.Pipeline.Workers),
		matching.WithMinScore(cfg.Matching.MinScore),
		matching.WithStorageTimeout(cfg.Pipeline.StorageTimeout),
		matching.WithLogger(logger.Named("matching")),
	)
	service := ingestion.NewService(b.jobs, b.staging, merger, matcher,
		ingestion.WithWorkers(cfg.Pipeline.Workers),
		ingestion.WithBatchSize(cfg.Pipeline.BatchSize),
		ingestion.WithJobTimeout(cfg.Pipeline.JobTimeout),
		ingestion.WithStorageTimeout(cfg.Pipeline.StorageTimeout),
		ingestion.WithLogger(logger.Named("ingestion")),
		ingestion.WithStatusInvalidator(projector),
	)

	return &services{
		ingestion: service,
		projector: projector,
		reports:   report.NewBuilder(b.jobs, b.users, b.products, b.matches, logger.Named("report")),
		catalog:   importer,
	}, nil
}

// healthHandler answers liveness checks with the storage state.
func healthHandler(b *backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := b.ping(r.Context()); err != nil {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, "{\"status\":%q}\n", status)
	}
}
