package http

import (
	"log/slog"
	"net/http"

	"github.com/opencourses/catalog-service/internal/service"
	"github.com/opencourses/catalog-service/pkg/httputil"
)

// AdminHandler exposes operational endpoints.
type AdminHandler struct {
	resyncer *service.Resyncer
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(resyncer *service.Resyncer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		resyncer: resyncer,
		logger:   logger,
	}
}

// Resync handles POST /api/v1/admin/resync. It runs a full index sweep
// synchronously and reports the number of documents upserted.
func (h *AdminHandler) Resync(w http.ResponseWriter, r *http.Request) {
	count, err := h.resyncer.RunOnce(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]int{"documents": count},
	})
}
