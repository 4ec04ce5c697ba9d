package search

import (
	"context"
	"time"

	"github.com/opencourses/catalog-service/internal/domain"
)

// SearchableCourse is the course document shape held in the search index.
// Only published courses are indexed.
type SearchableCourse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Instructor      string    `json:"instructor"`
	Level           string    `json:"level"`
	DurationHours   int       `json:"duration_hours"`
	Price           int64     `json:"price"`
	EnrollmentCount int64     `json:"enrollment_count"`
	Rating          float64   `json:"rating"`
	Tags            []string  `json:"tags"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromCourse converts a catalog course into its index document.
func FromCourse(c *domain.Course) SearchableCourse {
	return SearchableCourse{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		Category:        c.Category,
		Instructor:      c.Instructor,
		Level:           c.Level,
		DurationHours:   c.DurationHours,
		Price:           c.Price,
		EnrollmentCount: c.EnrollmentCount,
		Rating:          c.Rating,
		Tags:            c.Tags,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Query describes a full-text search request with optional filters.
type Query struct {
	Query      string
	Category   *string
	Instructor *string
	Level      *string
	Page       int
	PerPage    int
}

// Result holds a page of search hits.
type Result struct {
	Courses []SearchableCourse `json:"courses"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	TookMs  int64              `json:"took_ms"`
}

// Engine indexes and searches course documents. Implementations may use
// Elasticsearch or in-memory storage.
type Engine interface {
	// Index adds or updates a single course document.
	Index(ctx context.Context, course *SearchableCourse) error

	// Delete removes a course document by ID. Deleting an absent
	// document is not an error.
	Delete(ctx context.Context, id string) error

	// Search executes a query and returns matching course documents.
	Search(ctx context.Context, query *Query) (*Result, error)

	// BulkIndex adds or updates multiple course documents.
	BulkIndex(ctx context.Context, courses []SearchableCourse) error
}
