package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"

	"go.uber.org/zap"
)

// SidecarHealth reports the sidecar status.
type SidecarHealth interface {
	Health(ctx context.Context) (*model.SidecarHealthResponse, error)
}

type HealthHandler struct {
	sidecar SidecarHealth
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(sidecar SidecarHealth, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{sidecar: sidecar, timeout: 5 * time.Second, logger: logger.Named("http")}
}

// Health handles GET /health
// @Summary      Service health
// @Description  Reports this service and the signing sidecar
// @Tags         health
// @Produce      json
// @Success      200  {object}  model.HealthResponse
// @Failure      503  {object}  model.HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.sidecar.Health(ctx)
	if err != nil {
		h.logger.Warn("sidecar health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, model.HealthResponse{Status: "degraded", Sidecar: "unreachable"})
		return
	}
	if !resp.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, model.HealthResponse{Status: "degraded", Sidecar: resp.Status})
		return
	}

	writeJSON(w, http.StatusOK, model.HealthResponse{Status: "ok", Sidecar: resp.Status})
}
