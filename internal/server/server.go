// Package server hosts the optional localhost debug endpoints. It is not a
// protocol transport; the oracle protocol runs only on stdin/stdout.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/oraclectl/internal/observability"
	"github.com/danmuck/oraclectl/internal/oracle"
)

// Debug serves health, readiness, metrics and selector listing for one
// oracle process.
type Debug struct {
	name      string
	addr      string
	registry  *oracle.Registry
	startedAt time.Time
	logger    zerolog.Logger
	router    *gin.Engine
}

func NewDebug(name, addr string, registry *oracle.Registry, logger zerolog.Logger) *Debug {
	// gin writes its banner and route dump to stdout by default; stdout is
	// the protocol stream and must stay clean.
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	gin.DefaultErrorWriter = os.Stderr

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	d := &Debug{
		name:      name,
		addr:      addr,
		registry:  registry,
		startedAt: time.Now(),
		logger:    logger,
		router:    r,
	}
	d.registerRoutes()
	return d
}

func (d *Debug) Router() *gin.Engine {
	return d.router
}

// Start serves in the background; listen failures are logged, never fatal
// to the protocol session.
func (d *Debug) Start() {
	go func() {
		if err := d.router.Run(d.addr); err != nil {
			d.logger.Error().Err(err).Str("addr", d.addr).Msg("debug server stopped")
		}
	}()
}

func (d *Debug) registerRoutes() {
	d.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(d.startedAt).String(),
			"service": d.name,
			"version": "0.0.1",
		})
	})

	d.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  time.Since(d.startedAt).String(),
			"service": d.name,
			"version": "0.0.1",
		})
	})

	d.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	d.router.GET("/selectors", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"selectors": d.registry.Selectors(),
		})
	})
}
