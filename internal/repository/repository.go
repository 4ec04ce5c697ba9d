package repository

import (
	"context"

	"github.com/opencourses/catalog-service/internal/domain"
)

// Sort directions accepted by CourseFilter.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// sortColumns is the whitelist of sortable columns.
var sortColumns = map[string]struct{}{
	"created_at":       {},
	"updated_at":       {},
	"title":            {},
	"price":            {},
	"rating":           {},
	"duration_hours":   {},
	"enrollment_count": {},
}

// IsValidSortField reports whether the given column may be used for ordering.
func IsValidSortField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Category   *string
	Instructor *string
	Level      *string
	Status     *string
	Search     *string
	SortBy     string
	SortOrder  string
	Page       int
	PerPage    int
}

// CourseRepository defines the interface for course persistence operations.
// The store itself enforces identifier uniqueness; Create reports a conflict
// rather than the caller pre-checking, which would open a race window.
type CourseRepository interface {
	// Create inserts a new course into the store.
	Create(ctx context.Context, course *domain.Course) error

	// GetByID retrieves a course by its normalized identifier.
	GetByID(ctx context.Context, id string) (*domain.Course, error)

	// List returns courses matching the given filter along with the total count.
	List(ctx context.Context, filter CourseFilter) ([]domain.Course, int, error)

	// Update replaces an existing course in the store.
	Update(ctx context.Context, course *domain.Course) error

	// Delete removes a course from the store by its identifier.
	Delete(ctx context.Context, id string) error

	// ListPublished returns all published courses, used by the index resync sweep.
	ListPublished(ctx context.Context) ([]domain.Course, error)

	// Stats computes catalog-wide and per-category aggregates.
	Stats(ctx context.Context) (*domain.CatalogStats, error)
}
