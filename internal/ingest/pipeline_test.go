package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, repo repository.CourseRepository) (*Pipeline, *memory.Engine, cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := cache.NewRedisStore(client)
	engine := memory.New()

	// The Kafka producer points at nothing; publish failures are logged and
	// swallowed, matching production behavior without a broker.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), testLogger())
	producer := event.NewProducer(kafkaProducer, testLogger())

	pipe := NewPipeline(repo, engine, cache.NewInvalidator(store, testLogger()), producer, testLogger())
	return pipe, engine, store
}

const csvHeader = "id,title,description,category,instructor,duration_hours,level,price,enrollment_count,rating,tags,status"

func csvUpload(rows ...string) io.Reader {
	return strings.NewReader(csvHeader + "\n" + strings.Join(rows, "\n"))
}

// --- Run ---

func TestPipeline_Run_AllRowsValid(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	pipe, engine, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`go-basics,Go Basics,Learn the Go programming language.,programming,Ada Wexler,12,beginner,4900,0,0,go|backend,published`,
		`sql-mastery,SQL Mastery,Advanced relational database techniques.,programming,Sam Reyes,20,advanced,7900,0,0,sql,published`,
	))

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 2, report.ValidRows)
	assert.Equal(t, 2, report.SavedRows)
	assert.Len(t, report.SavedCourses, 2)
	assert.Empty(t, report.RowErrors)

	// Both published rows reached the index.
	assert.Equal(t, 2, engine.Size())
	repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestPipeline_Run_MissingTitleRow(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,Course One,A perfectly valid course row.,programming,Ada Wexler,10,beginner,0,0,0,,published`,
		`r2,Course Two,A perfectly valid course row.,programming,Ada Wexler,10,beginner,0,0,0,,published`,
		`r3,,A row with no title at all.,programming,Ada Wexler,10,beginner,0,0,0,,published`,
		`r4,Course Four,A perfectly valid course row.,programming,Ada Wexler,10,beginner,0,0,0,,published`,
		`r5,Course Five,A perfectly valid course row.,programming,Ada Wexler,10,beginner,0,0,0,,published`,
	))

	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalRows)
	assert.Equal(t, 4, report.ValidRows)
	assert.Equal(t, 4, report.SavedRows)
	assert.Equal(t, []string{"Row 3: Missing required fields: title"}, report.RowErrors)
}

func TestPipeline_Run_MultipleMissingFields(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,,No title and no instructor on this row.,programming,,10,,,,,,`,
	))

	require.NoError(t, err)
	assert.Equal(t, 0, report.SavedRows)
	require.Len(t, report.RowErrors, 1)
	assert.Equal(t, "Row 1: Missing required fields: title, instructor", report.RowErrors[0])
}

func TestPipeline_Run_EmptyUpload(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), strings.NewReader(""))

	assert.Nil(t, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPipeline_Run_HeaderOnly(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), strings.NewReader(csvHeader+"\n"))

	assert.Nil(t, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestPipeline_Run_AllRowsInvalidIsNotAHardError(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,,Missing the title.,programming,Ada Wexler,10,,,,,,`,
		`r2,Course Two,,programming,Ada Wexler,10,,,,,,`,
	))

	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 0, report.SavedRows)
	assert.Len(t, report.RowErrors, 2)
}

func TestPipeline_Run_DuplicateDoesNotAbortSiblings(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Course) bool {
		return c.ID == "dup"
	})).Return(apperrors.AlreadyExists("course", "id", "dup"))
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`dup,Duplicate Course,This row collides with an existing id.,programming,Ada Wexler,10,,,,,,published`,
		`fresh,Fresh Course,This row inserts without trouble.,programming,Ada Wexler,10,,,,,,published`,
	))

	require.NoError(t, err)
	assert.Equal(t, 2, report.ValidRows)
	assert.Equal(t, 1, report.SavedRows)
	require.Len(t, report.RowErrors, 1)
	assert.Contains(t, report.RowErrors[0], "Row 1:")
	assert.Contains(t, report.RowErrors[0], "already exists")
}

func TestPipeline_Run_OutOfRangeDurationIsRowError(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	// duration_hours is present but unparsable, so the lenient parse yields 0
	// and range validation rejects the row.
	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,Broken Duration,The duration on this row is not a number.,programming,Ada Wexler,abc,,,,,,`,
	))

	require.NoError(t, err)
	assert.Equal(t, 0, report.ValidRows)
	require.Len(t, report.RowErrors, 1)
	assert.Contains(t, report.RowErrors[0], "Row 1:")
	assert.Contains(t, report.RowErrors[0], "duration_hours")
}

func TestPipeline_Run_SilentCoercions(t *testing.T) {
	repo := new(mockCourseRepository)
	var created []*domain.Course
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(*domain.Course))
		}).
		Return(nil)

	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,Mystery Course,Category and level here are unrecognized.,underwater basket weaving,Ada Wexler,10,expert,not-a-price,,,,`,
	))

	require.NoError(t, err)
	assert.Equal(t, 1, report.SavedRows)
	require.Len(t, created, 1)
	assert.Equal(t, domain.CategoryOther, created[0].Category)
	assert.Equal(t, domain.LevelBeginner, created[0].Level)
	assert.Equal(t, int64(0), created[0].Price)
	// Bulk rows default to published when no status is given.
	assert.Equal(t, domain.StatusPublished, created[0].Status)
}

func TestPipeline_Run_DerivesIDWhenAbsent(t *testing.T) {
	repo := new(mockCourseRepository)
	var created []*domain.Course
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).
		Run(func(args mock.Arguments) {
			created = append(created, args.Get(1).(*domain.Course))
		}).
		Return(nil)

	pipe, _, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`,Go Basics,Learn the Go programming language.,programming,Ada Wexler,12,,,,,,`,
	))

	require.NoError(t, err)
	assert.Equal(t, 1, report.SavedRows)
	require.Len(t, created, 1)
	assert.True(t, strings.HasPrefix(created[0].ID, "go-basics-"), "derived id %q", created[0].ID)
}

func TestPipeline_Run_DraftRowsAreNotIndexed(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	pipe, engine, _ := newTestPipeline(t, repo)

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,Draft Course,Not yet visible to learners.,programming,Ada Wexler,10,,,,,,draft`,
		`r2,Live Course,Visible to learners right away.,programming,Ada Wexler,10,,,,,,published`,
	))

	require.NoError(t, err)
	assert.Equal(t, 2, report.SavedRows)
	assert.Equal(t, 1, engine.Size())
}

func TestPipeline_Run_IndexFailureDoesNotTouchReport(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := cache.NewRedisStore(client)

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), testLogger())
	producer := event.NewProducer(kafkaProducer, testLogger())

	pipe := NewPipeline(repo, &failingEngine{}, cache.NewInvalidator(store, testLogger()), producer, testLogger())

	report, err := pipe.Run(context.Background(), csvUpload(
		`r1,Go Basics,Learn the Go programming language.,programming,Ada Wexler,12,,,,,,published`,
	))

	require.NoError(t, err)
	assert.Equal(t, 1, report.SavedRows)
	assert.Empty(t, report.RowErrors)
}

func TestPipeline_Run_InvalidatesReadCachesOnce(t *testing.T) {
	repo := new(mockCourseRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Course")).Return(nil)

	pipe, _, store := newTestPipeline(t, repo)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, cache.ListKey(map[string]string{"page": "1"}), "stale", cache.ListTTL))
	require.NoError(t, store.Set(ctx, cache.StatsKey(), "stale", cache.StatsTTL))

	_, err := pipe.Run(ctx, csvUpload(
		`r1,Go Basics,Learn the Go programming language.,programming,Ada Wexler,12,,,,,,published`,
	))
	require.NoError(t, err)

	var out string
	assert.ErrorIs(t, store.Get(ctx, cache.ListKey(map[string]string{"page": "1"}), &out), cache.ErrMiss)
	assert.ErrorIs(t, store.Get(ctx, cache.StatsKey(), &out), cache.ErrMiss)
}

func TestPipeline_Run_CancelledContextKeepsPartialReport(t *testing.T) {
	repo := new(mockCourseRepository)
	pipe, _, _ := newTestPipeline(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := pipe.Run(ctx, csvUpload(
		`r1,Go Basics,Learn the Go programming language.,programming,Ada Wexler,12,,,,,,published`,
	))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The partial report is still returned.
	require.NotNil(t, report)
	assert.Equal(t, 0, report.SavedRows)
	repo.AssertNotCalled(t, "Create")
}

// failingEngine rejects every indexing call.
type failingEngine struct{}

func (f *failingEngine) Index(context.Context, *search.SearchableCourse) error {
	return errors.New("index unavailable")
}

func (f *failingEngine) Delete(context.Context, string) error {
	return errors.New("index unavailable")
}

func (f *failingEngine) Search(context.Context, *search.Query) (*search.Result, error) {
	return nil, errors.New("index unavailable")
}

func (f *failingEngine) BulkIndex(context.Context, []search.SearchableCourse) error {
	return errors.New("index unavailable")
}
