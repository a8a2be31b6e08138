package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/couchcryptid/hilltop-site-loader/internal/domain"
	"github.com/gin-gonic/gin"
)

type api struct {
	dataset DatasetSource
	logger  *slog.Logger
}

func newAPI(dataset DatasetSource, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	a := &api{dataset: dataset, logger: logger}
	v1 := engine.Group("/api/v1")
	v1.GET("/sites", a.handleListSites)
	v1.GET("/sites/:name", a.handleGetSite)
	return engine
}

// requestLogger replaces gin.Logger so API requests share the service logger.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// handleListSites returns the loaded dataset in site order.
// GET /api/v1/sites?status=present|not_found|unreachable|malformed
func (a *api) handleListSites(c *gin.Context) {
	records := a.dataset.Records()

	if status := c.Query("status"); status != "" {
		want := domain.MeasurementStatus(strings.ToLower(status))
		if !want.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown measurement status " + status})
			return
		}
		filtered := make([]domain.EnrichedRecord, 0, len(records))
		for _, r := range records {
			if r.Measurement.Status == want {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []domain.EnrichedRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"meta": gin.H{
			"count": len(records),
		},
	})
}

// handleGetSite returns one record by exact site name.
// GET /api/v1/sites/:name
func (a *api) handleGetSite(c *gin.Context) {
	name := c.Param("name")
	for _, r := range a.dataset.Records() {
		if r.Name == name {
			c.JSON(http.StatusOK, gin.H{"data": r})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
}
