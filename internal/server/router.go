// Package server assembles the HTTP surface.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"staging-studio-backend/internal/handlers"
	"staging-studio-backend/internal/logging"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/middleware"
)

var (
	errMissingVerifier = errors.New("token verifier dependency required")
	errMissingUsers    = errors.New("user source dependency required")
)

type Dependencies struct {
	Verifier       *middleware.Verifier
	Users          middleware.UserSource
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Logger         *zap.Logger

	Health      *handlers.HealthHandler
	Session     *handlers.SessionHandler
	Submissions *handlers.SubmissionsHandler
	Orders      *handlers.OrdersHandler
	Catalog     *handlers.CatalogHandler
	Chat        *handlers.ChatHandler
	Media       *handlers.MediaHandler
	Webhook     *handlers.WebhookHandler
	SPA         *handlers.SPAHandler
}

func NewHTTPHandler(deps Dependencies) (*gin.Engine, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))
	router.Use(deps.Metrics.Middleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	if deps.Health != nil {
		router.GET("/health", deps.Health.Health)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	authed := []gin.HandlerFunc{
		middleware.AuthMiddleware(deps.Verifier),
		middleware.IdentityMiddleware(deps.Users, logger),
	}

	// Passthroughs kept at their historical paths.
	legacy := router.Group("/api")
	if deps.Media != nil {
		legacy.GET("/media", deps.Media.Serve)
	}
	if deps.Orders != nil {
		passthrough := legacy.Group("", authed...)
		passthrough.POST("/create-checkout-session", deps.Orders.CreateCheckoutSession)
		passthrough.POST("/analyze-room", deps.Orders.AnalyzeRoom)
		passthrough.POST("/upload", deps.Orders.Upload)
	}

	v1 := router.Group("/api/v1")
	if deps.Catalog != nil {
		v1.GET("/plans", deps.Catalog.PublicPlans)
		v1.GET("/archive", deps.Catalog.PublicArchive)
	}
	if deps.Webhook != nil {
		v1.POST("/webhooks/stripe", deps.Webhook.HandleStripe)
	}

	// The session endpoint runs its own resolution and must not depend on
	// the per-request one succeeding.
	if deps.Session != nil {
		session := v1.Group("/session", middleware.AuthMiddleware(deps.Verifier))
		session.GET("", deps.Session.GetSession)
		session.DELETE("", deps.Session.EndSession)
	}

	api := v1.Group("", authed...)
	if deps.Submissions != nil {
		api.GET("/submissions", deps.Submissions.List)
		api.GET("/submissions/:id", deps.Submissions.Get)
	}
	if deps.Orders != nil {
		api.POST("/orders", deps.Orders.CreateOrder)
		api.POST("/orders/:id/confirm-payment", deps.Orders.ConfirmPayment)
		api.POST("/orders/:id/pay-quote", deps.Orders.PayQuote)
	}
	if deps.Chat != nil {
		api.GET("/chats", deps.Chat.Chats)
		api.GET("/submissions/:id/messages", deps.Chat.List)
		api.POST("/submissions/:id/messages", deps.Chat.Post)
		api.POST("/submissions/:id/messages/read", deps.Chat.MarkRead)
	}

	streams := v1.Group("",
		middleware.StreamAuthMiddleware(deps.Verifier),
		middleware.IdentityMiddleware(deps.Users, logger),
	)
	if deps.Submissions != nil {
		streams.GET("/submissions/stream", deps.Submissions.Stream)
	}
	if deps.Chat != nil {
		streams.GET("/submissions/:id/messages/stream", deps.Chat.Stream)
	}

	staff := api.Group("", middleware.RequireStaff())
	if deps.Submissions != nil {
		staff.GET("/dashboard", deps.Submissions.Dashboard)
		staff.PUT("/submissions/:id/assignment", deps.Submissions.Assign)
		staff.POST("/submissions/:id/deliveries/:slot", deps.Submissions.Deliver)
		staff.POST("/submissions/:id/approve", deps.Submissions.Approve)
		staff.POST("/submissions/:id/reject", deps.Submissions.Reject)
		staff.PUT("/submissions/:id/quote", deps.Submissions.SetQuote)
		staff.DELETE("/submissions/:id", deps.Submissions.Delete)
	}
	if deps.Catalog != nil {
		staff.GET("/admin/editors", deps.Catalog.ListEditors)

		admin := api.Group("/admin", middleware.RequireAdmin())
		admin.GET("/plans", deps.Catalog.ListPlans)
		admin.POST("/plans", deps.Catalog.CreatePlan)
		admin.PUT("/plans/:id", deps.Catalog.UpdatePlan)
		admin.PATCH("/plans/:id/visibility", deps.Catalog.SetPlanVisibility)
		admin.DELETE("/plans/:id", deps.Catalog.DeletePlan)
		admin.POST("/editors", deps.Catalog.CreateEditor)
		admin.DELETE("/editors/:id", deps.Catalog.DeleteEditor)
		admin.POST("/archive", deps.Catalog.CreateArchive)
		admin.PUT("/archive/:id", deps.Catalog.UpdateArchive)
		admin.DELETE("/archive/:id", deps.Catalog.DeleteArchive)
		admin.POST("/archive/images/:side", deps.Catalog.UploadArchiveImage)
	}

	if deps.SPA != nil {
		router.NoRoute(deps.SPA.Serve)
	}

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Stripe-Signature"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
