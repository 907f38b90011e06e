package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aidekit/aide-be/internal/api/dto"
	"github.com/aidekit/aide-be/internal/health"
	"github.com/gin-gonic/gin"
)

// Health handles GET /health
// Reports API liveness plus the monitor's persisted LLM status. An
// absent or expired health record reads as unknown, never as a stale
// healthy.
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.dbClient.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Database ping failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Status: "unhealthy",
		})
		return
	}

	resp := dto.HealthResponse{
		Status: "healthy",
		LLM:    &dto.LLMHealth{Status: string(health.StatusUnknown)},
	}

	record, err := h.healthStore.Get(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to read LLM health record", slog.String("error", err.Error()))
	} else if record != nil {
		resp.LLM = &dto.LLMHealth{
			Status:              string(record.Status),
			LastCheck:           record.LastCheck.Format(time.RFC3339),
			ConsecutiveFailures: record.ConsecutiveFailures,
		}
	}

	c.JSON(http.StatusOK, resp)
}
