package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencourses/catalog-service/internal/search"
	"github.com/opencourses/catalog-service/internal/service"
	"github.com/opencourses/catalog-service/pkg/httputil"
)

// SearchHandler handles HTTP requests for keyword search.
type SearchHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.CatalogService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := search.Query{
		Query:   strings.TrimSpace(r.URL.Query().Get("q")),
		Page:    1,
		PerPage: 20,
	}

	if query.Query == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "q must not be blank"},
		})
		return
	}

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		query.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		query.PerPage = perPage
	}
	if v := r.URL.Query().Get("category"); v != "" {
		query.Category = &v
	}
	if v := r.URL.Query().Get("instructor"); v != "" {
		query.Instructor = &v
	}
	if v := r.URL.Query().Get("level"); v != "" {
		query.Level = &v
	}

	resp, cached, err := h.service.SearchCourses(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteCached(w, resp, cached)
}
