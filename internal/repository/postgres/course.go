package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opencourses/catalog-service/internal/domain"
	"github.com/opencourses/catalog-service/internal/repository"
	"github.com/opencourses/catalog-service/pkg/database"
	apperrors "github.com/opencourses/catalog-service/pkg/errors"
)

const courseColumns = `id, title, description, category, instructor, duration_hours, level,
		price, enrollment_count, rating, tags, prerequisites, outcomes, status, created_at, updated_at`

// CourseRepository implements repository.CourseRepository using PostgreSQL.
type CourseRepository struct {
	pool database.Pool
}

// NewCourseRepository creates a new PostgreSQL-backed course repository.
func NewCourseRepository(pool database.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// Create inserts a new course into the database. A duplicate identifier is
// reported as an AlreadyExists conflict.
func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) error {
	query := `
		INSERT INTO courses (` + courseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Title,
		c.Description,
		c.Category,
		c.Instructor,
		c.DurationHours,
		c.Level,
		c.Price,
		c.EnrollmentCount,
		c.Rating,
		c.Tags,
		c.Prerequisites,
		c.Outcomes,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("course", "id", c.ID)
		}
		return fmt.Errorf("insert course: %w", err)
	}

	return nil
}

// GetByID retrieves a course by its identifier.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	var c domain.Course
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.Instructor,
		&c.DurationHours,
		&c.Level,
		&c.Price,
		&c.EnrollmentCount,
		&c.Rating,
		&c.Tags,
		&c.Prerequisites,
		&c.Outcomes,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("course", id)
		}
		return nil, fmt.Errorf("scan course: %w", err)
	}

	return &c, nil
}

// List returns courses matching the given filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter repository.CourseFilter) ([]domain.Course, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}

	if filter.Instructor != nil {
		conditions = append(conditions, fmt.Sprintf("instructor = $%d", argIndex))
		args = append(args, *filter.Instructor)
		argIndex++
	}

	if filter.Level != nil {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argIndex))
		args = append(args, *filter.Level)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.Search != nil {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+*filter.Search+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Sort columns come from a whitelist; never interpolate caller input directly.
	sortBy := "created_at"
	if repository.IsValidSortField(filter.SortBy) {
		sortBy = filter.SortBy
	}
	sortOrder := "DESC"
	if filter.SortOrder == repository.SortAsc {
		sortOrder = "ASC"
	}

	// count(*) OVER() yields the total count in a single query.
	query := fmt.Sprintf(`
		SELECT `+courseColumns+`,
			   count(*) OVER() AS total_count
		FROM courses
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d`,
		whereClause, sortBy, sortOrder, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var (
		courses    []domain.Course
		totalCount int
	)

	for rows.Next() {
		var c domain.Course
		if err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&c.Category,
			&c.Instructor,
			&c.DurationHours,
			&c.Level,
			&c.Price,
			&c.EnrollmentCount,
			&c.Rating,
			&c.Tags,
			&c.Prerequisites,
			&c.Outcomes,
			&c.Status,
			&c.CreatedAt,
			&c.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan course row: %w", err)
		}
		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate course rows: %w", err)
	}

	if courses == nil {
		courses = []domain.Course{}
	}

	return courses, totalCount, nil
}

// Update replaces an existing course in the database.
func (r *CourseRepository) Update(ctx context.Context, c *domain.Course) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE courses
		SET title = $1, description = $2, category = $3, instructor = $4,
		    duration_hours = $5, level = $6, price = $7, enrollment_count = $8,
		    rating = $9, tags = $10, prerequisites = $11, outcomes = $12,
		    status = $13, updated_at = $14
		WHERE id = $15`

	ct, err := r.pool.Exec(ctx, query,
		c.Title,
		c.Description,
		c.Category,
		c.Instructor,
		c.DurationHours,
		c.Level,
		c.Price,
		c.EnrollmentCount,
		c.Rating,
		c.Tags,
		c.Prerequisites,
		c.Outcomes,
		c.Status,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("course", c.ID)
	}

	return nil
}

// Delete removes a course from the database by its identifier.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("course", id)
	}

	return nil
}

// ListPublished returns every published course, ordered by creation time.
func (r *CourseRepository) ListPublished(ctx context.Context) ([]domain.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE status = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, domain.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published courses: %w", err)
	}
	defer rows.Close()

	var courses []domain.Course
	for rows.Next() {
		var c domain.Course
		if err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&c.Category,
			&c.Instructor,
			&c.DurationHours,
			&c.Level,
			&c.Price,
			&c.EnrollmentCount,
			&c.Rating,
			&c.Tags,
			&c.Prerequisites,
			&c.Outcomes,
			&c.Status,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan published course: %w", err)
		}
		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate published courses: %w", err)
	}

	if courses == nil {
		courses = []domain.Course{}
	}

	return courses, nil
}

// Stats computes catalog-wide and per-category aggregates in two queries.
func (r *CourseRepository) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	stats := &domain.CatalogStats{PerCategory: []domain.CategoryStats{}}

	overviewQuery := `
		SELECT count(*),
		       COALESCE(sum(enrollment_count), 0),
		       COALESCE(avg(rating), 0),
		       COALESCE(avg(duration_hours), 0),
		       COALESCE(avg(price), 0)
		FROM courses`

	err := r.pool.QueryRow(ctx, overviewQuery).Scan(
		&stats.Overview.Count,
		&stats.Overview.TotalEnrollments,
		&stats.Overview.AvgRating,
		&stats.Overview.AvgDurationHours,
		&stats.Overview.AvgPrice,
	)
	if err != nil {
		return nil, fmt.Errorf("stats overview: %w", err)
	}

	categoryQuery := `
		SELECT category,
		       count(*),
		       COALESCE(sum(enrollment_count), 0),
		       COALESCE(avg(rating), 0)
		FROM courses
		GROUP BY category
		ORDER BY count(*) DESC, category ASC`

	rows, err := r.pool.Query(ctx, categoryQuery)
	if err != nil {
		return nil, fmt.Errorf("stats per category: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs domain.CategoryStats
		if err := rows.Scan(&cs.Category, &cs.Count, &cs.TotalEnrollments, &cs.AvgRating); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		stats.PerCategory = append(stats.PerCategory, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats: %w", err)
	}

	return stats, nil
}

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
