package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness together with the number of in-flight fallback
// contexts.
//
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":                  "ok",
		"active_fallback_contexts": h.engine.ActiveContexts(),
	})
}
