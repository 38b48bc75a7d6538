package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rosterly/rosterly-be/internal/api/handler"
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
			"service": "roster-api-service",
		})
	})

	// Initialize handlers
	jobHandler := handler.NewJobHandler(deps)
	draftHandler := handler.NewDraftHandler(deps)
	shiftHandler := handler.NewShiftHandler(deps)
	adminHandler := handler.NewAdminHandler(deps)

	// API v1 routes, all tenant-scoped behind credential resolution
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.Resolver))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Upload a roster image and enqueue extraction
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job status and draft
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/discard - Abandon a job
			jobs.POST("/:job_id/discard", jobHandler.DiscardJob)

			// POST /api/v1/jobs/:job_id/draft - Add a missed record
			jobs.POST("/:job_id/draft", draftHandler.AddRecord)

			// PATCH /api/v1/jobs/:job_id/draft/:date - Correct a record
			jobs.PATCH("/:job_id/draft/:date", draftHandler.EditRecord)

			// DELETE /api/v1/jobs/:job_id/draft/:date - Drop a record
			jobs.DELETE("/:job_id/draft/:date", draftHandler.RemoveRecord)

			// POST /api/v1/jobs/:job_id/commit - Push the draft to the store
			jobs.POST("/:job_id/commit", draftHandler.Commit)
		}

		shifts := v1.Group("/shifts")
		{
			// GET /api/v1/shifts - Read committed shifts in a date range
			shifts.GET("", shiftHandler.ListShifts)

			// GET /api/v1/shifts/:date/traffic - Commute evaluation
			shifts.GET("/:date/traffic", shiftHandler.Traffic)
		}

		admin := v1.Group("/admin")
		admin.Use(AdminOnlyMiddleware())
		{
			// POST /api/v1/admin/tenants/:tenant_id/deactivate - Revoke access
			admin.POST("/tenants/:tenant_id/deactivate", adminHandler.DeactivateTenant)
		}
	}

	return r
}
