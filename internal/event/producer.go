package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opencourses/catalog-service/internal/domain"
	pkgkafka "github.com/opencourses/catalog-service/pkg/kafka"
)

// Kafka topic constants for catalog domain events.
const (
	TopicCourseCreated   = "catalog.course.created"
	TopicCourseUpdated   = "catalog.course.updated"
	TopicCourseDeleted   = "catalog.course.deleted"
	TopicIngestCompleted = "catalog.ingest.completed"
)

// Aggregate type constant.
const AggregateTypeCourse = "course"

// Source identifier for events originating from the catalog service.
const SourceCatalogService = "catalog-service"

// CourseCreatedData is the payload for a course.created event.
type CourseCreatedData struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Instructor string `json:"instructor"`
	Level      string `json:"level"`
	Status     string `json:"status"`
	Price      int64  `json:"price"`
}

// CourseUpdatedData is the payload for a course.updated event.
type CourseUpdatedData struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// CourseDeletedData is the payload for a course.deleted event.
type CourseDeletedData struct {
	ID string `json:"id"`
}

// IngestCompletedData is the payload for an ingest.completed event.
type IngestCompletedData struct {
	TotalRows int `json:"total_rows"`
	ValidRows int `json:"valid_rows"`
	SavedRows int `json:"saved_rows"`
	ErrorRows int `json:"error_rows"`
}

// Producer publishes catalog domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the catalog service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCourseCreated publishes a course.created event.
func (p *Producer) PublishCourseCreated(ctx context.Context, course *domain.Course) error {
	data := CourseCreatedData{
		ID:         course.ID,
		Title:      course.Title,
		Category:   course.Category,
		Instructor: course.Instructor,
		Level:      course.Level,
		Status:     course.Status,
		Price:      course.Price,
	}

	event, err := pkgkafka.NewEvent(TopicCourseCreated, course.ID, AggregateTypeCourse, SourceCatalogService, data)
	if err != nil {
		return fmt.Errorf("create course.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCourseCreated, event); err != nil {
		return fmt.Errorf("publish course.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published course.created event",
		slog.String("course_id", course.ID),
	)

	return nil
}

// PublishCourseUpdated publishes a course.updated event.
func (p *Producer) PublishCourseUpdated(ctx context.Context, course *domain.Course) error {
	data := CourseUpdatedData{
		ID:       course.ID,
		Title:    course.Title,
		Category: course.Category,
		Status:   course.Status,
	}

	event, err := pkgkafka.NewEvent(TopicCourseUpdated, course.ID, AggregateTypeCourse, SourceCatalogService, data)
	if err != nil {
		return fmt.Errorf("create course.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCourseUpdated, event); err != nil {
		return fmt.Errorf("publish course.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published course.updated event",
		slog.String("course_id", course.ID),
	)

	return nil
}

// PublishCourseDeleted publishes a course.deleted event.
func (p *Producer) PublishCourseDeleted(ctx context.Context, id string) error {
	event, err := pkgkafka.NewEvent(TopicCourseDeleted, id, AggregateTypeCourse, SourceCatalogService, CourseDeletedData{ID: id})
	if err != nil {
		return fmt.Errorf("create course.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCourseDeleted, event); err != nil {
		return fmt.Errorf("publish course.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published course.deleted event",
		slog.String("course_id", id),
	)

	return nil
}

// PublishIngestCompleted publishes an ingest.completed event summarizing a
// bulk ingestion run.
func (p *Producer) PublishIngestCompleted(ctx context.Context, report *domain.IngestionReport) error {
	data := IngestCompletedData{
		TotalRows: report.TotalRows,
		ValidRows: report.ValidRows,
		SavedRows: report.SavedRows,
		ErrorRows: len(report.RowErrors),
	}

	event, err := pkgkafka.NewEvent(TopicIngestCompleted, SourceCatalogService, AggregateTypeCourse, SourceCatalogService, data)
	if err != nil {
		return fmt.Errorf("create ingest.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicIngestCompleted, event); err != nil {
		return fmt.Errorf("publish ingest.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published ingest.completed event",
		slog.Int("saved_rows", report.SavedRows),
		slog.Int("error_rows", len(report.RowErrors)),
	)

	return nil
}
