package handlers

import (
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/app"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/http/middleware"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all API routes
func SetupRoutes(api *echo.Group, services *app.Services) {
	// Auth routes (no authentication required)
	authHandler := NewAuthHandler(services.AuthService)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(services.AuthService))

	// Conversations and assignment
	conversationHandler := NewConversationHandler(services.AssignmentService, services.ConversationRepo, services.QueueRepo)
	conversations := protected.Group("/conversations")
	conversations.POST("", conversationHandler.Create)
	conversations.GET("", conversationHandler.List)
	conversations.GET("/:id", conversationHandler.GetByID)
	conversations.POST("/:id/assign", conversationHandler.ManualAssign)
	conversations.POST("/:id/auto-assign", conversationHandler.AutoAssign)
	conversations.POST("/:id/status", conversationHandler.ChangeStatus)
	conversations.GET("/:id/history", conversationHandler.History)

	// Campaigns
	campaignHandler := NewCampaignHandler(services.CampaignDispatcher, services.CampaignRepo)
	campaigns := protected.Group("/campaigns")
	campaigns.POST("", campaignHandler.Create)
	campaigns.GET("/:id", campaignHandler.GetByID)
	campaigns.POST("/:id/schedule", campaignHandler.Schedule)
	campaigns.POST("/:id/run", campaignHandler.Run)
	campaigns.POST("/:id/stop", campaignHandler.Stop)
	campaigns.POST("/:id/targets/:target_id/requeue", campaignHandler.RequeueTarget)
	campaigns.GET("/:id/targets", campaignHandler.ListTargets)
	campaigns.GET("/:id/events", campaignHandler.ListEvents)

	// Warmup scheduler
	warmupHandler := NewWarmupHandler(services.WarmupService)
	warmup := protected.Group("/warmup")
	warmup.POST("/start", warmupHandler.Start)
	warmup.POST("/pause", warmupHandler.Pause)
	warmup.POST("/resume", warmupHandler.Resume)
	warmup.POST("/simulate", warmupHandler.Simulate)
	warmup.POST("/cycle", warmupHandler.RunCycle)
	warmup.PUT("/selection", warmupHandler.SetSelection)
	warmup.GET("/status", warmupHandler.Status)

	// Queue directory admin
	queueHandler := NewQueueHandler(services.QueueRepo)
	queues := protected.Group("/queues")
	queues.Use(middleware.TenantAdminOrAbove())
	queues.POST("", queueHandler.Create)
	queues.GET("", queueHandler.List)
	queues.GET("/:id", queueHandler.GetByID)
	queues.DELETE("/:id", queueHandler.Delete)
	queues.POST("/:id/agents/:user_id", queueHandler.AddAgent)
	queues.DELETE("/:id/agents/:user_id", queueHandler.RemoveAgent)
	queues.POST("/:id/channels/:channel_id", queueHandler.AddChannel)
	queues.DELETE("/:id/channels/:channel_id", queueHandler.RemoveChannel)
}
