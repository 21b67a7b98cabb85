package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payables/internal/domain"
	"payables/internal/port"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store port.RecordStore
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store port.RecordStore) *HealthHandler {
	return &HealthHandler{store: store}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz. A one-record probe against the Files
// table covers both store backends.
func (h *HealthHandler) Readiness(c *gin.Context) {
	_, err := h.store.List(c.Request.Context(), domain.TableFiles, port.Query{MaxRecords: 1})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "record store not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
