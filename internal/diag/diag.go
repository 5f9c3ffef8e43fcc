// Package diag serves the unauthenticated loopback diagnostics surface:
// health, readiness, metrics, and a live registry view. It is separate from
// the control listener; nothing here reaches the bridge or the host model.
package diag

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hostbridge/bridgectl/internal/observability"
	"github.com/hostbridge/bridgectl/internal/registry"
)

// Server is the diagnostics HTTP server for one instance.
type Server struct {
	instance string
	addr     string
	reg      *registry.Store
	router   *gin.Engine
	started  time.Time
}

func New(instance, addr string, reg *registry.Store, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		instance: instance,
		addr:     addr,
		reg:      reg,
		router:   r,
		started:  time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"instance": s.instance,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":    true,
			"uptime":   time.Since(s.started).String(),
			"instance": s.instance,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/peers", func(c *gin.Context) {
		entries := s.reg.ReadAll()
		peers := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			peers = append(peers, gin.H{
				"title":          e.Title,
				"instance":       e.InstanceID,
				"host":           e.Host,
				"port":           e.Port,
				"pid":            e.PID,
				"last_heartbeat": e.LastHeartbeat,
			})
		}
		c.JSON(http.StatusOK, gin.H{"peers": peers})
	})
}

// Serve blocks on the diagnostics listener.
func (s *Server) Serve() error {
	return s.router.Run(s.addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
