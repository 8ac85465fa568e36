package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-storefront/internal/httpapi/middleware"
)

func NewRouter(h *Handler, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Logging(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)

	r.POST("/checkout", h.Checkout)
	r.POST("/payment-intent", h.CreatePaymentIntent)
	r.POST("/webhook/stripe", h.StripeWebhook)

	r.GET("/orders/:number", h.GetOrder)

	r.GET("/reviews", h.ListReviews)
	r.POST("/reviews", h.CreateReview)

	r.PUT("/user/update", h.UpdateUser)

	admin := r.Group("/admin")
	{
		admin.POST("/promos", h.CreatePromo)
		admin.POST("/inventory/adjust", h.AdjustStock)
		admin.GET("/inventory/check", h.CheckInventory)
		admin.POST("/orders/:number/fulfil", h.FulfilOrder)
		admin.POST("/reviews/:id/approve", h.ApproveReview)
	}

	return r
}
