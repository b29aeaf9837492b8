package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osvaldoandrade/modelhub/internal/controllers"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", healthz(app))
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1")
	{
		v1.POST("/workflows", controllers.NewStartWorkflowController(app.Workflows).Handle)
		v1.GET("/workflows/:id", controllers.NewGetWorkflowController(app.Workflows).Handle)
		v1.DELETE("/workflows/:id", controllers.NewStopWorkflowController(app.Workflows).Handle)
		v1.PUT("/workflows/:id/fields/:key", controllers.NewSetFieldController(app.Workflows).Handle)
		v1.POST("/workflows/:id/fields/:key/upload", controllers.NewUploadFieldController(app.Workflows).Handle)
		v1.POST("/workflows/:id/submit", controllers.NewSubmitWorkflowController(app.Workflows).Handle)
		v1.GET("/workflows/:id/download", controllers.NewDownloadController(app.Workflows).Handle)
		v1.POST("/workflows/:id/chain", controllers.NewChainWorkflowController(app.Workflows).Handle)
	}
}

// healthz reports the cache backend; the API itself is not probed.
func healthz(app *Application) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := app.Cache.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "workflows": len(app.Workflows.List())})
	}
}
