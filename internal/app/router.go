package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusride/internal/auth"
	"campusride/internal/handler"
	"campusride/internal/middleware"
	"campusride/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	ProfileHandler *handler.ProfileHandler
	RideHandler    *handler.RideHandler
	BookingHandler *handler.BookingHandler
	WalletHandler  *handler.WalletHandler
	RatingHandler  *handler.RatingHandler

	Issuer           *auth.Issuer
	IdempotencyStore redis.IdempotencyStoreInterface // nil disables response replay
	NewRelicApp      *newrelic.Application
	Logger           *zap.Logger

	RequestsPerMinute int
	AllowedOrigins    []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLog(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.RateLimit(deps.RequestsPerMinute, deps.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	idempotent := middleware.Idempotency(deps.IdempotencyStore, deps.Logger)
	authenticated := middleware.Authenticate(deps.Issuer, deps.Logger)

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Public routes.
		v1.POST("/profiles", idempotent, deps.ProfileHandler.Create)
		v1.GET("/profiles", deps.ProfileHandler.GetAll)
		v1.GET("/profiles/:id", deps.ProfileHandler.Get)

		v1.GET("/rides", deps.RideHandler.GetAll)
		v1.GET("/rides/search", deps.RideHandler.Search)
		v1.GET("/rides/:id", deps.RideHandler.GetRide)
		v1.GET("/rides/:id/bookings", deps.BookingHandler.ListByRide)
		v1.GET("/bookings/:id", deps.BookingHandler.Get)

		v1.GET("/users/:id/ratings", deps.RatingHandler.ListForUser)
		v1.GET("/users/:id/trust-score", deps.RatingHandler.TrustScore)

		v1.POST("/timetable/suggestions", deps.RideHandler.Suggest)

		// Routes acting as the caller.
		me := v1.Group("", authenticated, idempotent)
		{
			me.PATCH("/profiles/me/role", deps.ProfileHandler.SetRole)
			me.PUT("/profiles/me/wallet-balance", deps.ProfileHandler.UpdateWalletBalance)

			me.POST("/rides", deps.RideHandler.CreateRide)
			me.PATCH("/rides/:id/status", deps.RideHandler.UpdateStatus)
			me.POST("/rides/:id/settle", deps.RideHandler.Settle)
			me.POST("/rides/:id/bookings", deps.BookingHandler.Request)
			me.PATCH("/bookings/:id/status", deps.BookingHandler.UpdateStatus)

			me.POST("/wallet/top-up", deps.WalletHandler.TopUp)
			me.GET("/users/:id/transactions", deps.WalletHandler.Transactions)
			me.GET("/users/:id/balance", deps.WalletHandler.Balance)

			me.POST("/ratings", deps.RatingHandler.Submit)
		}
	}

	return router
}
