package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencourses/catalog-service/internal/repository"
	"github.com/opencourses/catalog-service/internal/search"
)

// Resyncer periodically re-reads every published course from the store and
// re-upserts it into the search index. The sweep is idempotent and bounds
// the staleness window left by best-effort indexing on the write path.
type Resyncer struct {
	repo   repository.CourseRepository
	engine search.Engine
	logger *slog.Logger
}

// NewResyncer creates a resyncer over the given store and index.
func NewResyncer(repo repository.CourseRepository, engine search.Engine, logger *slog.Logger) *Resyncer {
	return &Resyncer{
		repo:   repo,
		engine: engine,
		logger: logger,
	}
}

// RunOnce performs a single resync sweep and returns the number of
// documents upserted.
func (r *Resyncer) RunOnce(ctx context.Context) (int, error) {
	courses, err := r.repo.ListPublished(ctx)
	if err != nil {
		return 0, fmt.Errorf("resync: list published courses: %w", err)
	}

	docs := make([]search.SearchableCourse, 0, len(courses))
	for i := range courses {
		docs = append(docs, search.FromCourse(&courses[i]))
	}

	if err := r.engine.BulkIndex(ctx, docs); err != nil {
		return 0, fmt.Errorf("resync: bulk index: %w", err)
	}

	return len(docs), nil
}

// Run sweeps on the given interval until the context is cancelled. A failed
// cycle is logged and skipped; the next cycle retries.
func (r *Resyncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("search resync loop started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("search resync loop stopped")
			return
		case <-ticker.C:
			count, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.WarnContext(ctx, "resync cycle failed, will retry next cycle",
					slog.String("error", err.Error()),
				)
				continue
			}
			r.logger.InfoContext(ctx, "resync cycle completed", slog.Int("documents", count))
		}
	}
}
