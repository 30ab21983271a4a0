package handlers

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/likeness/pkg/tables"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const serviceName = "likeness"

// HealthHandler handles health check requests
type HealthHandler struct {
	store   Store
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Store) *HealthHandler {
	return &HealthHandler{
		store:   store,
		started: time.Now(),
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// LivenessCheck handles GET /live - Kubernetes liveness probe endpoint
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /ready. The service is ready once the tables
// directory is readable; each served table is reported individually.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	checks := gin.H{}
	response["checks"] = checks

	allHealthy := true
	if h.store == nil {
		checks["tables"] = gin.H{
			"status": "unhealthy",
			"error":  "tables store not initialized",
		}
		allHealthy = false
	} else if info, err := os.Stat(h.store.Dir()); err != nil || !info.IsDir() {
		checks["tables"] = gin.H{
			"status": "unhealthy",
			"error":  fmt.Sprintf("tables directory %s is not readable", h.store.Dir()),
		}
		allHealthy = false
	} else {
		checks["tables"] = gin.H{"status": "healthy", "dir": h.store.Dir()}
		for _, name := range []string{tables.LikenessVerdicts, tables.ClusterVerdicts, tables.Report} {
			status := "missing"
			if h.store.Exists(name) {
				status = "available"
			}
			checks[name] = gin.H{"status": status}
		}
	}

	checks["system"] = gin.H{
		"status":     "healthy",
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": GoVersion,
	}

	if !allHealthy {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
