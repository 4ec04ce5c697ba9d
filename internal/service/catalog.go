package service

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/opencourses/catalog-service/pkg/pagination"
)

// CatalogService implements the catalog read and write operations. Reads
// follow the cache-aside protocol; writes keep a strict store, index,
// cache-invalidation order within each call. Every collaborator is
// injected through the constructor.
type CatalogService struct {
	repo        repository.CourseRepository
	store       cache.Store
	invalidator *cache.Invalidator
	engine      search.Engine
	producer    *event.Producer
	logger      *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(
	repo repository.CourseRepository,
	store cache.Store,
	invalidator *cache.Invalidator,
	engine search.Engine,
	producer *event.Producer,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repo:        repo,
		store:       store,
		invalidator: invalidator,
		engine:      engine,
		producer:    producer,
		logger:      logger,
	}
}

// SearchResponse is the result of a keyword search, echoing the query.
type SearchResponse struct {
	Query   string                                     `json:"query"`
	Results pagination.Result[search.SearchableCourse] `json:"results"`
	TookMs  int64                                      `json:"took_ms"`
}

// ListCourses returns a filtered, paginated course listing. The second
// return value reports whether the response was served from cache.
func (s *CatalogService) ListCourses(ctx context.Context, filter repository.CourseFilter) (*pagination.Result[domain.Course], bool, error) {
	params := normalizePage(filter.Page, filter.PerPage)
	filter.Page = params.Page
	filter.PerPage = params.PerPage

	key := cache.ListKey(listKeyParams(filter))

	var cached pagination.Result[domain.Course]
	if s.cacheGet(ctx, key, &cached) {
		return &cached, true, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, fmt.Errorf("list courses: %w", err)
	}

	result := pagination.NewResult(courses, total, params)
	s.cacheSet(ctx, key, result, cache.ListTTL)

	return &result, false, nil
}

// SearchCourses runs a keyword search over the index. A blank query is a
// caller error. An unreachable engine degrades to an empty result set
// instead of failing the request; degraded responses are never cached.
func (s *CatalogService) SearchCourses(ctx context.Context, query search.Query) (*SearchResponse, bool, error) {
	query.Query = strings.TrimSpace(query.Query)
	if query.Query == "" {
		return nil, false, apperrors.InvalidInput("search query must not be blank")
	}

	params := normalizePage(query.Page, query.PerPage)
	query.Page = params.Page
	query.PerPage = params.PerPage

	key := cache.SearchKey(searchKeyParams(query))

	var cached SearchResponse
	if s.cacheGet(ctx, key, &cached) {
		return &cached, true, nil
	}

	result, err := s.engine.Search(ctx, &query)
	if err != nil {
		s.logger.WarnContext(ctx, "search engine unavailable, serving empty results",
			slog.String("query", query.Query),
			slog.String("error", err.Error()),
		)
		degraded := &SearchResponse{
			Query:   query.Query,
			Results: pagination.NewResult([]search.SearchableCourse{}, 0, params),
		}
		return degraded, false, nil
	}

	response := SearchResponse{
		Query:   query.Query,
		Results: pagination.NewResult(result.Courses, result.Total, params),
		TookMs:  result.TookMs,
	}
	s.cacheSet(ctx, key, response, cache.SearchTTL)

	return &response, false, nil
}

// GetCourse fetches a single course by its identifier.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*domain.Course, bool, error) {
	id = domain.NormalizeID(id)
	if id == "" {
		return nil, false, apperrors.InvalidInput("course id must not be blank")
	}

	key := cache.CourseKey(id)

	var cached domain.Course
	if s.cacheGet(ctx, key, &cached) {
		return &cached, true, nil
	}

	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("get course by id: %w", err)
	}

	// Only published courses are cached; drafts and archived records always
	// read through to the store.
	if course.Status == domain.StatusPublished {
		s.cacheSet(ctx, key, course, cache.CourseTTL)
	}

	return course, false, nil
}

// GetStatistics returns catalog-wide aggregates under a single global
// cache key.
func (s *CatalogService) GetStatistics(ctx context.Context) (*domain.CatalogStats, bool, error) {
	key := cache.StatsKey()

	var cached domain.CatalogStats
	if s.cacheGet(ctx, key, &cached) {
		return &cached, true, nil
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("catalog statistics: %w", err)
	}

	s.cacheSet(ctx, key, stats, cache.StatsTTL)

	return stats, false, nil
}

// CourseInput holds the fields for creating or replacing a course.
type CourseInput struct {
	ID            string
	Title         string
	Description   string
	Category      string
	Instructor    string
	DurationHours int
	Level         string
	Price         int64
	Tags          []string
	Prerequisites []string
	Outcomes      []string
	Status        string
}

// CreateCourse creates a single course. Unlike bulk ingestion, a duplicate
// identifier is a fatal rejection here, and the status defaults to draft.
func (s *CatalogService) CreateCourse(ctx context.Context, input *CourseInput) (*domain.Course, error) {
	now := time.Now().UTC()

	id := domain.NormalizeID(input.ID)
	if id == "" {
		id = domain.DeriveID(input.Title, now)
	}

	course := &domain.Course{
		ID:            id,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      domain.NormalizeCategory(input.Category),
		Instructor:    strings.TrimSpace(input.Instructor),
		DurationHours: input.DurationHours,
		Level:         domain.NormalizeLevel(input.Level),
		Price:         input.Price,
		Tags:          emptyIfNil(input.Tags),
		Prerequisites: emptyIfNil(input.Prerequisites),
		Outcomes:      emptyIfNil(input.Outcomes),
		Status:        domain.NormalizeStatus(input.Status, domain.StatusDraft),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := course.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.syncIndex(ctx, course)
	// Purge the record key too: the identifier may have been cached by a
	// previously deleted record.
	s.invalidator.InvalidateCourse(ctx, course.ID)

	if err := s.producer.PublishCourseCreated(ctx, course); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish course.created event",
			slog.String("course_id", course.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "course created",
		slog.String("course_id", course.ID),
		slog.String("status", course.Status),
	)

	return course, nil
}

// ReplaceCourse replaces an existing course wholesale. A transition out of
// published removes the search document in the same call.
func (s *CatalogService) ReplaceCourse(ctx context.Context, id string, input *CourseInput) (*domain.Course, error) {
	id = domain.NormalizeID(id)

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replace course: %w", err)
	}

	course := &domain.Course{
		ID:              id,
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Category:        domain.NormalizeCategory(input.Category),
		Instructor:      strings.TrimSpace(input.Instructor),
		DurationHours:   input.DurationHours,
		Level:           domain.NormalizeLevel(input.Level),
		Price:           input.Price,
		EnrollmentCount: existing.EnrollmentCount,
		Rating:          existing.Rating,
		Tags:            emptyIfNil(input.Tags),
		Prerequisites:   emptyIfNil(input.Prerequisites),
		Outcomes:        emptyIfNil(input.Outcomes),
		Status:          domain.NormalizeStatus(input.Status, existing.Status),
		CreatedAt:       existing.CreatedAt,
		UpdatedAt:       time.Now().UTC(),
	}

	if err := course.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, fmt.Errorf("replace course: %w", err)
	}

	s.syncIndex(ctx, course)
	s.invalidator.InvalidateCourse(ctx, id)

	if err := s.producer.PublishCourseUpdated(ctx, course); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish course.updated event",
			slog.String("course_id", course.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "course replaced",
		slog.String("course_id", course.ID),
		slog.String("status", course.Status),
	)

	return course, nil
}

// DeleteCourse removes a course. The index document and cache entries go
// through the same removal path as an update.
func (s *CatalogService) DeleteCourse(ctx context.Context, id string) error {
	id = domain.NormalizeID(id)

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	if err := s.engine.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "index removal failed, resync will repair",
			slog.String("course_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.invalidator.InvalidateCourse(ctx, id)

	if err := s.producer.PublishCourseDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish course.deleted event",
			slog.String("course_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "course deleted", slog.String("course_id", id))

	return nil
}

// syncIndex brings the search document in line with the record's status:
// published records are upserted, everything else is removed. Failures are
// logged only; the periodic resync bounds the staleness window.
func (s *CatalogService) syncIndex(ctx context.Context, course *domain.Course) {
	var err error
	if course.Status == domain.StatusPublished {
		doc := search.FromCourse(course)
		err = s.engine.Index(ctx, &doc)
	} else {
		err = s.engine.Delete(ctx, course.ID)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "index sync failed, resync will repair",
			slog.String("course_id", course.ID),
			slog.String("status", course.Status),
			slog.String("error", err.Error()),
		)
	}
}

// cacheGet reports whether the key was served from cache. Cache failures
// are advisory: anything but a clean hit counts as a miss.
func (s *CatalogService) cacheGet(ctx context.Context, key string, dest any) bool {
	err := s.store.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.WarnContext(ctx, "cache read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return false
}

// cacheSet populates the cache on a miss. Failures are ignored beyond a log
// line; the read has already completed from the source of truth.
func (s *CatalogService) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func normalizePage(page, perPage int) pagination.Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return pagination.Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

func listKeyParams(filter repository.CourseFilter) map[string]string {
	params := map[string]string{
		"page":       strconv.Itoa(filter.Page),
		"per_page":   strconv.Itoa(filter.PerPage),
		"sort_by":    filter.SortBy,
		"sort_order": filter.SortOrder,
	}
	if filter.Category != nil {
		params["category"] = *filter.Category
	}
	if filter.Instructor != nil {
		params["instructor"] = *filter.Instructor
	}
	if filter.Level != nil {
		params["level"] = *filter.Level
	}
	if filter.Status != nil {
		params["status"] = *filter.Status
	}
	if filter.Search != nil {
		params["search"] = *filter.Search
	}
	return params
}

func searchKeyParams(query search.Query) map[string]string {
	params := map[string]string{
		"q":        query.Query,
		"page":     strconv.Itoa(query.Page),
		"per_page": strconv.Itoa(query.PerPage),
	}
	if query.Category != nil {
		params["category"] = *query.Category
	}
	if query.Instructor != nil {
		params["instructor"] = *query.Instructor
	}
	if query.Level != nil {
		params["level"] = *query.Level
	}
	return params
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
