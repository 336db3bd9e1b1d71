package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/media-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "media-api-service",
		})
	})

	mediaHandler := handler.NewMediaHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		assets := v1.Group("/media")
		{
			// POST /api/v1/media - Upload an image or video
			assets.POST("", mediaHandler.UploadMedia)

			// GET /api/v1/media - List assets with filtering and pagination
			assets.GET("", mediaHandler.ListMedia)

			// GET /api/v1/media/:asset_id - Get asset details and progress
			assets.GET("/:asset_id", mediaHandler.GetMedia)

			// GET /api/v1/media/:asset_id/download - Signed download URL
			assets.GET("/:asset_id/download", mediaHandler.DownloadMedia)

			// DELETE /api/v1/media/:asset_id - Delete an asset
			assets.DELETE("/:asset_id", mediaHandler.DeleteMedia)
		}
	}

	return r
}
