package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	MaxUploadBytes int64
}

func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger), CORS(cfg.AllowedOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/detect", LimitBody(cfg.MaxUploadBytes), h.Detect)

		jobs := v1.Group("/jobs")
		jobs.POST("", LimitBody(cfg.MaxUploadBytes), h.SubmitJob)
		jobs.GET("/:id", h.GetJob)
		jobs.GET("/:id/events", h.Events)
		jobs.GET("/:id/download", h.Download)
		jobs.DELETE("/:id", h.CancelJob)
	}

	return router
}
