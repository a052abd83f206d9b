package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness for load balancers and uptime probes. It is
// unauthenticated and touches no dependencies.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "activitypro",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
