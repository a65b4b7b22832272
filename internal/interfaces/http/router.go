package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/database"
	"github.com/Abdurazzoq789/uz-tts/internal/interfaces/http/middleware"
)

// NewRouter wires the admin API. /health and /metrics are public; every
// /api/admin route past login requires a bearer token.
func NewRouter(handler *AdminHandler, auth services.AuthService, db *database.PostgresDB) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := db.Health(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "uz-tts-admin",
			"time":    time.Now(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("/api/admin")
	admin.POST("/login", handler.Login)

	protected := admin.Group("")
	protected.Use(middleware.JWTAuthMiddleware(auth))
	protected.GET("/payments/pending", handler.ListPendingPayments)
	protected.POST("/payments/:id/confirm", handler.ConfirmPayment)
	protected.POST("/payments/:id/reject", handler.RejectPayment)
	protected.POST("/users/:id/blacklist", handler.BlacklistUser)
	protected.DELETE("/users/:id/blacklist", handler.UnblacklistUser)
	protected.GET("/stats", handler.Stats)

	return router
}
