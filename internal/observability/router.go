package observability

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusFunc reports runtime state for the /health endpoint.
type StatusFunc func() gin.H

// RouterConfig configures the ops HTTP surface.
type RouterConfig struct {
	Node        string
	CorsOrigins []string
	Logger      zerolog.Logger
	Status      StatusFunc
}

// NewRouter serves /health and /metrics.
func NewRouter(cfg RouterConfig) *gin.Engine {
	RegisterMetrics()
	startedAt := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(opsRequests(cfg.Node, cfg.Logger))
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status": "ok",
			"node":   cfg.Node,
			"uptime": time.Since(startedAt).String(),
		}
		if cfg.Status != nil {
			for k, v := range cfg.Status() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
