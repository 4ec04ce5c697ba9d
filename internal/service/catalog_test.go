package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opencourses/catalog-service/internal/cache"
	"github.com/opencourses/catalog-service/internal/domain"
	"github.com/opencourses/catalog-service/internal/event"
	"github.com/opencourses/catalog-service/internal/repository"
	"github.com/opencourses/catalog-service/internal/search"
	"github.com/opencourses/catalog-service/internal/search/memory"
	apperrors "github.com/opencourses/catalog-service/pkg/errors"
	pkgkafka "github.com/opencourses/catalog-service/pkg/kafka"
)

// --- Mock Repository ---

type mockCourseRepository struct {
	mock.Mock
}

func (m *mockCourseRepository) Create(ctx context.Context, course *domain.Course) error {
	args := m.Called(ctx, course)
	return args.Error(0)
}

func (m *mockCourseRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *mockCourseRepository) List(ctx context.Context, filter repository.CourseFilter) ([]domain.Course, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Course), args.Int(1), args.Error(2)
}

func (m *mockCourseRepository) Update(ctx context.Context, course *domain.Course) error {
	args := m.Called(ctx, course)
	return args.Error(0)
}

func (m *mockCourseRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCourseRepository) ListPublished(ctx context.Context) ([]domain.Course, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Course), args.Error(1)
}

func (m *mockCourseRepository) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CatalogStats), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type testHarness struct {
	svc    *CatalogService
	repo   *mockCourseRepository
	engine *memory.Engine
	store  cache.Store
	redis  *goredis.Client
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := newTestLogger()
	repo := new(mockCourseRepository)
	engine := memory.New()
	store := cache.NewRedisStore(client)

	// The Kafka producer points at nothing; publish failures are logged and
	// swallowed, matching production behavior without a broker.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), logger)
	producer := event.NewProducer(kafkaProducer, logger)

	svc := NewCatalogService(repo, store, cache.NewInvalidator(store, logger), engine, producer, logger)
	return &testHarness{svc: svc, repo: repo, engine: engine, store: store, redis: client}
}

func sampleCourse(id string) *domain.Course {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Course{
		ID:              id,
		Title:           "Go Basics",
		Description:     "An introduction to the Go programming language.",
		Category:        domain.CategoryProgramming,
		Instructor:      "Ada Wexler",
		DurationHours:   12,
		Level:           domain.LevelBeginner,
		Price:           4900,
		EnrollmentCount: 250,
		Rating:          4.5,
		Tags:            []string{"go"},
		Prerequisites:   []string{},
		Outcomes:        []string{},
		Status:          domain.StatusPublished,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func sampleInput() *CourseInput {
	return &CourseInput{
		ID:            "go-basics",
		Title:         "Go Basics",
		Description:   "An introduction to the Go programming language.",
		Category:      "programming",
		Instructor:    "Ada Wexler",
		DurationHours: 12,
		Level:         "beginner",
		Price:         4900,
	}
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// ListCourses
// ---------------------------------------------------------------------------

func TestListCourses_CacheMissThenHit(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	courses := []domain.Course{*sampleCourse("go-basics")}
	h.repo.On("List", mock.Anything, mock.AnythingOfType("repository.CourseFilter")).
		Return(courses, 1, nil).Once()

	filter := repository.CourseFilter{Category: strPtr("programming")}

	result, cached, err := h.svc.ListCourses(ctx, filter)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, result.TotalCount)
	require.Len(t, result.Data, 1)

	// Second identical call is served from cache without touching the repo.
	result, cached, err = h.svc.ListCourses(ctx, filter)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "go-basics", result.Data[0].ID)
	h.repo.AssertNumberOfCalls(t, "List", 1)
}

func TestListCourses_DifferentFiltersGetDifferentKeys(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.repo.On("List", mock.Anything, mock.AnythingOfType("repository.CourseFilter")).
		Return([]domain.Course{}, 0, nil)

	_, cached, err := h.svc.ListCourses(ctx, repository.CourseFilter{Category: strPtr("programming")})
	require.NoError(t, err)
	assert.False(t, cached)

	_, cached, err = h.svc.ListCourses(ctx, repository.CourseFilter{Category: strPtr("design")})
	require.NoError(t, err)
	assert.False(t, cached)
	h.repo.AssertNumberOfCalls(t, "List", 2)
}

func TestListCourses_RepoError(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("List", mock.Anything, mock.AnythingOfType("repository.CourseFilter")).
		Return([]domain.Course{}, 0, errors.New("connection lost"))

	_, _, err := h.svc.ListCourses(context.Background(), repository.CourseFilter{})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// SearchCourses
// ---------------------------------------------------------------------------

func TestSearchCourses_BlankQueryRejected(t *testing.T) {
	h := newTestHarness(t)

	_, _, err := h.svc.SearchCourses(context.Background(), search.Query{Query: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearchCourses_CacheMissThenHit(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	doc := search.FromCourse(sampleCourse("go-basics"))
	require.NoError(t, h.engine.Index(ctx, &doc))

	resp, cached, err := h.svc.SearchCourses(ctx, search.Query{Query: "go"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "go", resp.Query)
	assert.Equal(t, 1, resp.Results.TotalCount)

	resp, cached, err = h.svc.SearchCourses(ctx, search.Query{Query: "go"})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, resp.Results.TotalCount)
}

func TestSearchCourses_EngineUnavailableDegradesToEmpty(t *testing.T) {
	h := newTestHarness(t)
	h.svc.engine = &failingEngine{}

	resp, cached, err := h.svc.SearchCourses(context.Background(), search.Query{Query: "go"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 0, resp.Results.TotalCount)
	assert.Empty(t, resp.Results.Data)
}

func TestSearchCourses_DegradedResultIsNotCached(t *testing.T) {
	h := newTestHarness(t)
	failing := &failingEngine{}
	h.svc.engine = failing

	ctx := context.Background()
	_, _, err := h.svc.SearchCourses(ctx, search.Query{Query: "go"})
	require.NoError(t, err)

	// Engine recovers; the next call must reach it instead of replaying the
	// degraded empty payload from cache.
	doc := search.FromCourse(sampleCourse("go-basics"))
	require.NoError(t, h.engine.Index(ctx, &doc))
	h.svc.engine = h.engine

	resp, cached, err := h.svc.SearchCourses(ctx, search.Query{Query: "go"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, resp.Results.TotalCount)
}

// ---------------------------------------------------------------------------
// GetCourse
// ---------------------------------------------------------------------------

func TestGetCourse_CacheMissThenHit(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	course := sampleCourse("go-basics")
	h.repo.On("GetByID", mock.Anything, "go-basics").Return(course, nil).Once()

	got, cached, err := h.svc.GetCourse(ctx, "go-basics")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, course.Title, got.Title)

	got, cached, err = h.svc.GetCourse(ctx, "go-basics")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, course.Title, got.Title)
	h.repo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestGetCourse_DraftIsNeverCached(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	draft := sampleCourse("go-drafting")
	draft.Status = domain.StatusDraft
	h.repo.On("GetByID", mock.Anything, "go-drafting").Return(draft, nil)

	got, cached, err := h.svc.GetCourse(ctx, "go-drafting")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, domain.StatusDraft, got.Status)

	// The second read must hit the repository again.
	_, cached, err = h.svc.GetCourse(ctx, "go-drafting")
	require.NoError(t, err)
	assert.False(t, cached)
	h.repo.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestGetCourse_NormalizesID(t *testing.T) {
	h := newTestHarness(t)

	course := sampleCourse("go-basics")
	h.repo.On("GetByID", mock.Anything, "go-basics").Return(course, nil)

	got, _, err := h.svc.GetCourse(context.Background(), "  GO-Basics ")
	require.NoError(t, err)
	assert.Equal(t, "go-basics", got.ID)
}

func TestGetCourse_NotFound(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("GetByID", mock.Anything, "missing").
		Return(nil, apperrors.NotFound("course", "missing"))

	_, _, err := h.svc.GetCourse(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ---------------------------------------------------------------------------
// GetStatistics
// ---------------------------------------------------------------------------

func TestGetStatistics_CacheMissThenHit(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	stats := &domain.CatalogStats{
		Overview:    domain.StatsOverview{Count: 10, TotalEnrollments: 1200, AvgRating: 4.2},
		PerCategory: []domain.CategoryStats{{Category: "programming", Count: 6}},
	}
	h.repo.On("Stats", mock.Anything).Return(stats, nil).Once()

	got, cached, err := h.svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(10), got.Overview.Count)

	got, cached, err = h.svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(1200), got.Overview.TotalEnrollments)
	h.repo.AssertNumberOfCalls(t, "Stats", 1)
}

// ---------------------------------------------------------------------------
// Degraded cache
// ---------------------------------------------------------------------------

func TestReads_SurviveCacheOutage(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// Kill the cache connection; every read must still come back correct
	// with cached=false.
	require.NoError(t, h.redis.Close())

	course := sampleCourse("go-basics")
	h.repo.On("List", mock.Anything, mock.AnythingOfType("repository.CourseFilter")).
		Return([]domain.Course{*course}, 1, nil)
	h.repo.On("GetByID", mock.Anything, "go-basics").Return(course, nil)
	h.repo.On("Stats", mock.Anything).Return(&domain.CatalogStats{PerCategory: []domain.CategoryStats{}}, nil)

	doc := search.FromCourse(course)
	require.NoError(t, h.engine.Index(ctx, &doc))

	result, cached, err := h.svc.ListCourses(ctx, repository.CourseFilter{})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, result.TotalCount)

	got, cached, err := h.svc.GetCourse(ctx, "go-basics")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, course.Title, got.Title)

	resp, cached, err := h.svc.SearchCourses(ctx, search.Query{Query: "go"})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, resp.Results.TotalCount)

	_, cached, err = h.svc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
}

// ---------------------------------------------------------------------------
// CreateCourse
// ---------------------------------------------------------------------------

func TestCreateCourse_DefaultsToDraftAndSkipsIndex(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	course, err := h.svc.CreateCourse(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, course.Status)
	// Draft records never reach the index.
	assert.Equal(t, 0, h.engine.Size())
}

func TestCreateCourse_PublishedIsIndexed(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	input := sampleInput()
	input.Status = "published"

	course, err := h.svc.CreateCourse(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, course.Status)
	assert.Equal(t, 1, h.engine.Size())
}

func TestCreateCourse_ConflictIsFatal(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).
		Return(apperrors.AlreadyExists("course", "id", "go-basics"))

	_, err := h.svc.CreateCourse(context.Background(), sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Equal(t, 0, h.engine.Size())
}

func TestCreateCourse_InvalidInput(t *testing.T) {
	h := newTestHarness(t)

	input := sampleInput()
	input.Title = "ab"

	_, err := h.svc.CreateCourse(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	h.repo.AssertNotCalled(t, "Create")
}

func TestCreateCourse_DerivesIDWhenAbsent(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	input := sampleInput()
	input.ID = ""

	course, err := h.svc.CreateCourse(context.Background(), input)
	require.NoError(t, err)
	assert.Contains(t, course.ID, "go-basics-")
}

func TestCreateCourse_OverwritesStaleRecordCache(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// A stale payload sits under the record key, left by an earlier record
	// with the same identifier.
	stale := sampleCourse("go-basics")
	stale.Title = "Old Title"
	require.NoError(t, h.store.Set(ctx, cache.CourseKey("go-basics"), stale, cache.CourseTTL))

	h.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	created, err := h.svc.CreateCourse(ctx, sampleInput())
	require.NoError(t, err)

	h.repo.On("GetByID", mock.Anything, "go-basics").Return(created, nil)

	got, _, err := h.svc.GetCourse(ctx, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", got.Title)
}

// ---------------------------------------------------------------------------
// ReplaceCourse
// ---------------------------------------------------------------------------

func TestReplaceCourse_PublishedToDraftRemovesIndexDocument(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	existing := sampleCourse("go-basics")
	doc := search.FromCourse(existing)
	require.NoError(t, h.engine.Index(ctx, &doc))
	require.NoError(t, h.store.Set(ctx, cache.CourseKey("go-basics"), existing, cache.CourseTTL))

	h.repo.On("GetByID", mock.Anything, "go-basics").Return(existing, nil)
	h.repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	input := sampleInput()
	input.Status = "draft"

	course, err := h.svc.ReplaceCourse(ctx, "go-basics", input)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, course.Status)

	// Index document and cached record are gone within the same call.
	assert.Equal(t, 0, h.engine.Size())
	var out domain.Course
	assert.ErrorIs(t, h.store.Get(ctx, cache.CourseKey("go-basics"), &out), cache.ErrMiss)
}

func TestReplaceCourse_PreservesCreationTimeAndCounters(t *testing.T) {
	h := newTestHarness(t)

	existing := sampleCourse("go-basics")
	existing.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing.EnrollmentCount = 999

	h.repo.On("GetByID", mock.Anything, "go-basics").Return(existing, nil)
	h.repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	course, err := h.svc.ReplaceCourse(context.Background(), "go-basics", sampleInput())
	require.NoError(t, err)
	assert.Equal(t, existing.CreatedAt, course.CreatedAt)
	assert.Equal(t, int64(999), course.EnrollmentCount)
	assert.True(t, course.UpdatedAt.After(existing.CreatedAt))
}

func TestReplaceCourse_NotFound(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("GetByID", mock.Anything, "missing").
		Return(nil, apperrors.NotFound("course", "missing"))

	_, err := h.svc.ReplaceCourse(context.Background(), "missing", sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	h.repo.AssertNotCalled(t, "Update")
}

// ---------------------------------------------------------------------------
// DeleteCourse
// ---------------------------------------------------------------------------

func TestDeleteCourse_RemovesIndexAndCache(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	existing := sampleCourse("go-basics")
	doc := search.FromCourse(existing)
	require.NoError(t, h.engine.Index(ctx, &doc))
	require.NoError(t, h.store.Set(ctx, cache.CourseKey("go-basics"), existing, cache.CourseTTL))
	require.NoError(t, h.store.Set(ctx, cache.ListKey(map[string]string{"page": "1"}), existing, cache.ListTTL))

	h.repo.On("Delete", mock.Anything, "go-basics").Return(nil)

	require.NoError(t, h.svc.DeleteCourse(ctx, "go-basics"))

	assert.Equal(t, 0, h.engine.Size())
	var out domain.Course
	assert.ErrorIs(t, h.store.Get(ctx, cache.CourseKey("go-basics"), &out), cache.ErrMiss)
	assert.ErrorIs(t, h.store.Get(ctx, cache.ListKey(map[string]string{"page": "1"}), &out), cache.ErrMiss)
}

func TestDeleteCourse_NotFound(t *testing.T) {
	h := newTestHarness(t)

	h.repo.On("Delete", mock.Anything, "missing").
		Return(apperrors.NotFound("course", "missing"))

	err := h.svc.DeleteCourse(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// failingEngine rejects every call.
type failingEngine struct{}

func (f *failingEngine) Index(context.Context, *search.SearchableCourse) error {
	return apperrors.Unavailable("search", errors.New("cluster unreachable"))
}

func (f *failingEngine) Delete(context.Context, string) error {
	return apperrors.Unavailable("search", errors.New("cluster unreachable"))
}

func (f *failingEngine) Search(context.Context, *search.Query) (*search.Result, error) {
	return nil, apperrors.Unavailable("search", errors.New("cluster unreachable"))
}

func (f *failingEngine) BulkIndex(context.Context, []search.SearchableCourse) error {
	return apperrors.Unavailable("search", errors.New("cluster unreachable"))
}
