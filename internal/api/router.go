// ABOUTME: Gin router wiring for the control API
// ABOUTME: Keeps route layout in one place for handlers and tests
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the gin router.
func SetupRouter(a *API) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	control := r.Group("/api")
	{
		control.POST("/play", a.Play)
		control.POST("/stop", a.Stop)
		control.GET("/status", a.Status)
		control.GET("/log", a.Log)
		control.GET("/events", a.Events)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// corsMiddleware allows browser-based dashboards to poll the probe.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
