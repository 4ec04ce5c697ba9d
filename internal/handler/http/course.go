package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opencourses/catalog-service/internal/domain"
	"github.com/opencourses/catalog-service/internal/repository"
	"github.com/opencourses/catalog-service/internal/service"
	"github.com/opencourses/catalog-service/pkg/httputil"
	"github.com/opencourses/catalog-service/pkg/validator"
)

// CourseHandler handles HTTP requests for course endpoints.
type CourseHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewCourseHandler creates a new course HTTP handler.
func NewCourseHandler(svc *service.CatalogService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateCourseRequest is the JSON request body for creating a course.
type CreateCourseRequest struct {
	ID            string   `json:"id" validate:"omitempty,max=255"`
	Title         string   `json:"title" validate:"required,min=3,max=255"`
	Description   string   `json:"description" validate:"required,min=10"`
	Category      string   `json:"category" validate:"required"`
	Instructor    string   `json:"instructor" validate:"required,min=1,max=255"`
	DurationHours int      `json:"duration_hours" validate:"required,gte=1,lte=1000"`
	Level         string   `json:"level"`
	Price         int64    `json:"price" validate:"gte=0"`
	Tags          []string `json:"tags"`
	Prerequisites []string `json:"prerequisites"`
	Outcomes      []string `json:"outcomes"`
	Status        string   `json:"status" validate:"omitempty,oneof=draft published archived"`
}

// ReplaceCourseRequest is the JSON request body for replacing a course. All
// descriptive fields are required; a replace is wholesale, not a patch.
type ReplaceCourseRequest struct {
	Title         string   `json:"title" validate:"required,min=3,max=255"`
	Description   string   `json:"description" validate:"required,min=10"`
	Category      string   `json:"category" validate:"required"`
	Instructor    string   `json:"instructor" validate:"required,min=1,max=255"`
	DurationHours int      `json:"duration_hours" validate:"required,gte=1,lte=1000"`
	Level         string   `json:"level"`
	Price         int64    `json:"price" validate:"gte=0"`
	Tags          []string `json:"tags"`
	Prerequisites []string `json:"prerequisites"`
	Outcomes      []string `json:"outcomes"`
	Status        string   `json:"status" validate:"omitempty,oneof=draft published archived"`
}

// --- Handlers ---

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	filter := repository.CourseFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := r.URL.Query().Get("category"); v != "" {
		filter.Category = &v
	}
	if v := r.URL.Query().Get("instructor"); v != "" {
		filter.Instructor = &v
	}
	if v := r.URL.Query().Get("level"); v != "" {
		filter.Level = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if !domain.IsValidStatus(v) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "status must be one of: " + strings.Join(domain.ValidStatuses(), ", ")},
			})
			return
		}
		filter.Status = &v
	}
	if v := r.URL.Query().Get("search"); v != "" {
		filter.Search = &v
	}
	if v := r.URL.Query().Get("sort_by"); v != "" {
		if !repository.IsValidSortField(v) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "sort_by must be a sortable field such as created_at, title, price or rating"},
			})
			return
		}
		filter.SortBy = v
	}
	if v := r.URL.Query().Get("sort_order"); v != "" {
		if v != repository.SortAsc && v != repository.SortDesc {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "sort_order must be asc or desc"},
			})
			return
		}
		filter.SortOrder = v
	}

	result, cached, err := h.service.ListCourses(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteCached(w, result, cached)
}

// GetCourse handles GET /api/v1/courses/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	course, cached, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteCached(w, course, cached)
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit

	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	course, err := h.service.CreateCourse(r.Context(), &service.CourseInput{
		ID:            req.ID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Instructor:    req.Instructor,
		DurationHours: req.DurationHours,
		Level:         req.Level,
		Price:         req.Price,
		Tags:          req.Tags,
		Prerequisites: req.Prerequisites,
		Outcomes:      req.Outcomes,
		Status:        req.Status,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: course})
}

// ReplaceCourse handles PUT /api/v1/courses/{id}
func (h *CourseHandler) ReplaceCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit

	var req ReplaceCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	course, err := h.service.ReplaceCourse(r.Context(), id, &service.CourseInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Instructor:    req.Instructor,
		DurationHours: req.DurationHours,
		Level:         req.Level,
		Price:         req.Price,
		Tags:          req.Tags,
		Prerequisites: req.Prerequisites,
		Outcomes:      req.Outcomes,
		Status:        req.Status,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: course})
}

// DeleteCourse handles DELETE /api/v1/courses/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteCourse(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatistics handles GET /api/v1/stats
func (h *CourseHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, cached, err := h.service.GetStatistics(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteCached(w, stats, cached)
}
