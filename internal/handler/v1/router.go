package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/propflow/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Appointments   AppointmentService
	Sessions       SessionService
	Tokens         TokenValidator
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	Log            *zap.Logger
	CORS           config.CORSConfig
	RateLimit      config.RateLimitConfig

	// Ready reports whether dependencies can serve traffic. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(
		Recovery(cfg.Log),
		RequestID(),
		AccessLog(cfg.Log),
		Metrics(cfg.Metrics),
		CORS(cfg.CORS),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	h := NewAppointmentHandler(cfg.Appointments, cfg.Log)
	staff := RequireRoles(domain.RoleAgent, domain.RoleAdmin)

	public := r.Group("/api/v1")
	public.Use(RateLimit(cfg.RateLimit))
	if cfg.Sessions != nil {
		public.POST("/auth/refresh", NewAuthHandler(cfg.Sessions, cfg.Log).Refresh)
	}

	api := public.Group("")
	api.Use(Authenticate(cfg.Tokens))
	{
		appointments := api.Group("/appointments")
		appointments.GET("", h.List)
		appointments.POST("", h.Create)
		appointments.GET("/property/:propertyId", h.ListByProperty)
		appointments.GET("/:id", h.Get)
		appointments.PUT("/:id", h.Update)
		appointments.DELETE("/:id", RequireRoles(domain.RoleAdmin), h.Delete)
		appointments.PATCH("/:id/cancel", h.Cancel)
		appointments.PATCH("/:id/confirm", staff, h.Confirm)
		appointments.PATCH("/:id/complete", staff, h.Complete)
	}

	return r
}
