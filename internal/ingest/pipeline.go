package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/opencourses/catalog-service/internal/cache"
	"github.com/opencourses/catalog-service/internal/domain"
	"github.com/opencourses/catalog-service/internal/event"
	"github.com/opencourses/catalog-service/internal/repository"
	"github.com/opencourses/catalog-service/internal/search"
	apperrors "github.com/opencourses/catalog-service/pkg/errors"
)

// requiredColumns must be present and non-blank in every row. Order matters
// for deterministic error messages.
var requiredColumns = []string{"title", "description", "category", "instructor", "duration_hours"}

// Pipeline turns a bulk CSV upload into catalog records. Row-level problems
// are collected in the report; only a structurally broken upload is a hard
// error. The store is the correctness boundary: rows that reach it stay
// committed even when indexing or later rows fail.
type Pipeline struct {
	repo        repository.CourseRepository
	engine      search.Engine
	invalidator *cache.Invalidator
	producer    *event.Producer
	logger      *slog.Logger
}

// NewPipeline creates an ingestion pipeline with its collaborators
// injected.
func NewPipeline(repo repository.CourseRepository, engine search.Engine, invalidator *cache.Invalidator, producer *event.Producer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		repo:        repo,
		engine:      engine,
		invalidator: invalidator,
		producer:    producer,
		logger:      logger,
	}
}

// Run parses the CSV stream and ingests it row by row. A malformed or empty
// stream aborts before touching the store. Cancellation mid-batch keeps the
// rows already saved and returns the partial report alongside the context
// error.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*domain.IngestionReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.InvalidInput("upload is empty")
		}
		return nil, apperrors.InvalidInput(fmt.Sprintf("unreadable upload: %v", err))
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	report := domain.NewIngestionReport()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.finish(ctx, report)
			return report, ctxErr
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A broken row only poisons itself; note it and keep going.
			report.TotalRows++
			report.RowErrors = append(report.RowErrors,
				fmt.Sprintf("Row %d: %v", report.TotalRows, err))
			continue
		}

		report.TotalRows++
		row := rowValues(columns, record)

		if missing := missingFields(row); len(missing) > 0 {
			report.RowErrors = append(report.RowErrors,
				fmt.Sprintf("Row %d: Missing required fields: %s", report.TotalRows, strings.Join(missing, ", ")))
			continue
		}

		course := buildCourse(row)
		if err := course.Validate(); err != nil {
			report.RowErrors = append(report.RowErrors,
				fmt.Sprintf("Row %d: %v", report.TotalRows, err))
			continue
		}
		report.ValidRows++

		if err := p.repo.Create(ctx, course); err != nil {
			report.RowErrors = append(report.RowErrors,
				fmt.Sprintf("Row %d: %s", report.TotalRows, rowErrorMessage(err)))
			continue
		}

		report.SavedRows++
		report.SavedCourses = append(report.SavedCourses, *course)
	}

	if report.TotalRows == 0 {
		return nil, apperrors.InvalidInput("upload contains no data rows")
	}

	p.finish(ctx, report)
	return report, nil
}

// finish indexes the published rows that made it into the store and purges
// derived read caches once for the whole batch. Both steps are best effort.
func (p *Pipeline) finish(ctx context.Context, report *domain.IngestionReport) {
	docs := make([]search.SearchableCourse, 0, len(report.SavedCourses))
	for i := range report.SavedCourses {
		if report.SavedCourses[i].Status == domain.StatusPublished {
			docs = append(docs, search.FromCourse(&report.SavedCourses[i]))
		}
	}

	if len(docs) > 0 {
		if err := p.engine.BulkIndex(ctx, docs); err != nil {
			p.logger.WarnContext(ctx, "bulk indexing failed, resync will repair",
				slog.Int("documents", len(docs)),
				slog.String("error", err.Error()),
			)
		}
	}

	if report.SavedRows > 0 {
		p.invalidator.InvalidateReads(ctx)
	}

	if err := p.producer.PublishIngestCompleted(ctx, report); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish ingest.completed event",
			slog.String("error", err.Error()),
		)
		// Do not fail the batch if event publishing fails.
	}
}

// rowValues maps the record onto the header columns, tolerating short rows.
func rowValues(columns map[string]int, record []string) map[string]string {
	row := make(map[string]string, len(columns))
	for name, idx := range columns {
		if idx < len(record) {
			row[name] = strings.TrimSpace(record[idx])
		}
	}
	return row
}

// missingFields reports required columns that are absent or blank, in the
// canonical column order.
func missingFields(row map[string]string) []string {
	var missing []string
	for _, name := range requiredColumns {
		if row[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// buildCourse converts a parsed row into a course record. Enum coercion is
// silent and numeric parsing is lenient, matching the bulk import policy:
// a bad optional value degrades to its default instead of rejecting the row.
func buildCourse(row map[string]string) *domain.Course {
	now := time.Now().UTC()

	id := domain.NormalizeID(row["id"])
	if id == "" {
		id = domain.DeriveID(row["title"], now)
	}

	return &domain.Course{
		ID:              id,
		Title:           row["title"],
		Description:     row["description"],
		Category:        domain.NormalizeCategory(row["category"]),
		Instructor:      row["instructor"],
		DurationHours:   parseIntLenient(row["duration_hours"]),
		Level:           domain.NormalizeLevel(row["level"]),
		Price:           parseInt64Lenient(row["price"]),
		EnrollmentCount: parseInt64Lenient(row["enrollment_count"]),
		Rating:          parseFloatLenient(row["rating"]),
		Tags:            domain.SplitList(row["tags"]),
		Prerequisites:   domain.SplitList(row["prerequisites"]),
		Outcomes:        domain.SplitList(row["outcomes"]),
		Status:          domain.NormalizeStatus(row["status"], domain.StatusPublished),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// rowErrorMessage prefers the short application message over the wrapped
// driver error chain.
func rowErrorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func parseIntLenient(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func parseInt64Lenient(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloatLenient(raw string) float64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}
