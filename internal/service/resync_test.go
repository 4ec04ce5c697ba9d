package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opencourses/catalog-service/internal/domain"
	"github.com/opencourses/catalog-service/internal/search"
	"github.com/opencourses/catalog-service/internal/search/memory"
)

func TestResyncer_RunOnce_UpsertsAllPublished(t *testing.T) {
	repo := new(mockCourseRepository)
	engine := memory.New()
	r := NewResyncer(repo, engine, newTestLogger())

	a := sampleCourse("go-basics")
	b := sampleCourse("docker-intro")
	b.Title = "Docker Intro"
	repo.On("ListPublished", mock.Anything).Return([]domain.Course{*a, *b}, nil)

	count, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, engine.Size())
}

func TestResyncer_RunOnce_RepairsMissingDocument(t *testing.T) {
	repo := new(mockCourseRepository)
	engine := memory.New()
	r := NewResyncer(repo, engine, newTestLogger())
	ctx := context.Background()

	course := sampleCourse("go-basics")
	repo.On("ListPublished", mock.Anything).Return([]domain.Course{*course}, nil)

	// The write-path index call was lost; the sweep must restore the document.
	result, err := engine.Search(ctx, &search.Query{Query: "go"})
	require.NoError(t, err)
	require.Equal(t, 0, result.Total)

	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	result, err = engine.Search(ctx, &search.Query{Query: "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestResyncer_RunOnce_IsIdempotent(t *testing.T) {
	repo := new(mockCourseRepository)
	engine := memory.New()
	r := NewResyncer(repo, engine, newTestLogger())
	ctx := context.Background()

	course := sampleCourse("go-basics")
	repo.On("ListPublished", mock.Anything).Return([]domain.Course{*course}, nil)

	_, err := r.RunOnce(ctx)
	require.NoError(t, err)
	first, err := engine.Search(ctx, &search.Query{Query: "go"})
	require.NoError(t, err)

	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	second, err := engine.Search(ctx, &search.Query{Query: "go"})
	require.NoError(t, err)

	assert.Equal(t, 1, engine.Size())
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Courses, second.Courses)
}

func TestResyncer_RunOnce_EmptyCatalog(t *testing.T) {
	repo := new(mockCourseRepository)
	engine := memory.New()
	r := NewResyncer(repo, engine, newTestLogger())

	repo.On("ListPublished", mock.Anything).Return([]domain.Course{}, nil)

	count, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestResyncer_RunOnce_StoreError(t *testing.T) {
	repo := new(mockCourseRepository)
	engine := memory.New()
	r := NewResyncer(repo, engine, newTestLogger())

	repo.On("ListPublished", mock.Anything).
		Return([]domain.Course{}, errors.New("connection lost"))

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, engine.Size())
}

func TestResyncer_RunOnce_IndexError(t *testing.T) {
	repo := new(mockCourseRepository)
	r := NewResyncer(repo, &failingEngine{}, newTestLogger())

	repo.On("ListPublished", mock.Anything).
		Return([]domain.Course{*sampleCourse("go-basics")}, nil)

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
}
