package clusters

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/pkg/ctxlog"
	"github.com/reliefgrid/sos-engine/internal/pkg/httputil"
)

// Handler exposes the live cluster view.
type Handler struct {
	service *Service
}

// NewHandler creates a new clusters handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers cluster routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/clusters", h.listClusters)
}

func (h *Handler) listClusters(w http.ResponseWriter, r *http.Request) {
	var radiusKM float64
	if raw := r.URL.Query().Get("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			httputil.Error(w, http.StatusBadRequest, "radius_km must be a positive number")
			return
		}
		radiusKM = parsed
	}

	result, err := h.service.ComputeClusters(r.Context(), radiusKM)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to compute clusters", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if result == nil {
		result = []domain.Cluster{}
	}

	httputil.Success(w, http.StatusOK, result)
}
