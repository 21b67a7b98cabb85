package router

import (
	"github.com/gin-gonic/gin"

	"payables/internal/handler"
	"payables/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	fileH *handler.FileHandler,
	invoiceH *handler.InvoiceHandler,
	healthH *handler.HealthHandler,
	corsOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	// File routes
	files := v1.Group("/files")
	files.POST("/upload", fileH.Upload)
	files.GET("", fileH.List)
	files.GET("/:id", fileH.GetByID)
	files.GET("/:id/download", fileH.Download)
	files.GET("/:id/status/stream", fileH.StreamStatus)
	files.POST("/:id/reprocess", fileH.Reprocess)
	files.DELETE("/:id", fileH.Clear)

	// Invoice routes
	invoices := v1.Group("/invoices")
	invoices.GET("/:id", invoiceH.GetByID)
	invoices.POST("/:id/queue", invoiceH.Queue)
	invoices.POST("/:id/retry", invoiceH.Retry)

	// Export routes
	v1.POST("/exports", invoiceH.Export)

	return r
}
