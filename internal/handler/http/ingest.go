package http

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencourses/catalog-service/internal/ingest"
	"github.com/opencourses/catalog-service/pkg/httputil"
)

// maxUploadSize limits a CSV upload to 10 MB.
const maxUploadSize = 10 << 20

// IngestHandler handles bulk CSV uploads.
type IngestHandler struct {
	pipeline *ingest.Pipeline
	logger   *slog.Logger
}

// NewIngestHandler creates a new ingestion HTTP handler.
func NewIngestHandler(pipeline *ingest.Pipeline, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// Ingest handles POST /api/v1/catalog/ingest. It accepts the CSV either as
// a multipart form field named "file" or as the raw request body.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var reader io.Reader = r.Body

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "failed to parse multipart form: " + err.Error()},
			})
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "file is required: " + err.Error()},
			})
			return
		}
		defer file.Close()
		reader = file
	}

	report, err := h.pipeline.Run(r.Context(), reader)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: report})
}
