package api

import (
	v1 "github.com/cartpay/cartpay/internal/api/v1"
	"github.com/cartpay/cartpay/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health      *v1.HealthHandler
	CartPayment *v1.CartPaymentHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.TenantMiddleware)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Health)

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	// Cart payment routes
	cartPayments := router.Group("/cart_payments")
	{
		cartPayments.POST("", handlers.CartPayment.CreateCartPayment)
		cartPayments.GET("", handlers.CartPayment.ListCartPayments)
		cartPayments.PUT("/upsert", handlers.CartPayment.UpsertCartPayment)
		cartPayments.GET("/:id", handlers.CartPayment.GetCartPayment)
		cartPayments.POST("/:id/adjust", handlers.CartPayment.UpdateCartPayment)
		cartPayments.POST("/:id/cancel", handlers.CartPayment.CancelCartPayment)
		cartPayments.GET("/:id/adjustments", handlers.CartPayment.GetAdjustmentHistory)
	}
}
