package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opencourses/catalog-service/internal/search"
)

// Engine is an in-memory implementation of the search.Engine interface.
// It provides weighted substring matching over course fields and is
// intended for development and tests. Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	courses map[string]search.SearchableCourse
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		courses: make(map[string]search.SearchableCourse),
	}
}

// Index adds or updates a single course document in the in-memory index.
func (e *Engine) Index(_ context.Context, course *search.SearchableCourse) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.courses[course.ID] = *course
	return nil
}

// Delete removes a course document from the in-memory index by its ID.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.courses, id)
	return nil
}

// BulkIndex adds or updates multiple course documents in the in-memory index.
func (e *Engine) BulkIndex(_ context.Context, courses []search.SearchableCourse) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range courses {
		e.courses[courses[i].ID] = courses[i]
	}
	return nil
}

// Size returns the number of indexed documents.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.courses)
}

type scoredCourse struct {
	course search.SearchableCourse
	score  int
}

// Search executes a search query against the in-memory index.
func (e *Engine) Search(_ context.Context, query *search.Query) (*search.Result, error) {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	queryLower := strings.ToLower(query.Query)

	matched := make([]scoredCourse, 0)
	for _, c := range e.courses {
		if !matchesFilters(c, query) {
			continue
		}
		score := matchScore(c, queryLower)
		if queryLower != "" && score == 0 {
			continue
		}
		matched = append(matched, scoredCourse{course: c, score: score})
	}

	// Score first, creation time breaks ties.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].course.CreatedAt.After(matched[j].course.CreatedAt)
	})

	total := len(matched)

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	offset := (page - 1) * perPage
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}

	courses := make([]search.SearchableCourse, 0, end-offset)
	for _, sc := range matched[offset:end] {
		courses = append(courses, sc.course)
	}

	return &search.Result{
		Courses: courses,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		TookMs:  time.Since(start).Milliseconds(),
	}, nil
}

// matchScore computes a weighted relevance score: a title hit counts
// double compared to description, instructor or category hits.
func matchScore(c search.SearchableCourse, queryLower string) int {
	if queryLower == "" {
		return 0
	}

	score := 0
	if strings.Contains(strings.ToLower(c.Title), queryLower) {
		score += 2
	}
	if strings.Contains(strings.ToLower(c.Description), queryLower) {
		score++
	}
	if strings.Contains(strings.ToLower(c.Instructor), queryLower) {
		score++
	}
	if strings.Contains(strings.ToLower(c.Category), queryLower) {
		score++
	}
	return score
}

// matchesFilters checks whether a course matches the query filters.
func matchesFilters(c search.SearchableCourse, query *search.Query) bool {
	if query.Category != nil && *query.Category != "" {
		if c.Category != *query.Category {
			return false
		}
	}

	if query.Instructor != nil && *query.Instructor != "" {
		if c.Instructor != *query.Instructor {
			return false
		}
	}

	if query.Level != nil && *query.Level != "" {
		if c.Level != *query.Level {
			return false
		}
	}

	return true
}
