package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantPage    int
		wantPerPage int
		wantOffset  int
	}{
		{"defaults", "/courses", 1, 20, 0},
		{"explicit", "/courses?page=3&per_page=10", 3, 10, 20},
		{"invalid page falls back", "/courses?page=abc", 1, 20, 0},
		{"zero page falls back", "/courses?page=0", 1, 20, 0},
		{"per_page above cap ignored", "/courses?per_page=500", 1, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			p := FromRequest(r)

			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantPerPage, p.PerPage)
			assert.Equal(t, tt.wantOffset, p.Offset)
		})
	}
}

func TestNewResult(t *testing.T) {
	params := Params{Page: 2, PerPage: 10}
	res := NewResult([]string{"a", "b"}, 25, params)

	assert.Equal(t, 3, res.TotalPages)
	assert.True(t, res.HasNext)
	assert.True(t, res.HasPrev)
	assert.Equal(t, 25, res.TotalCount)
}

func TestNewResult_NilData(t *testing.T) {
	res := NewResult[string](nil, 0, Params{Page: 1, PerPage: 20})

	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.False(t, res.HasNext)
	assert.False(t, res.HasPrev)
}
