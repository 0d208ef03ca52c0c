package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avolkov/mcprouter/internal/health"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/router"
)

const (
	adminReadHeaderTimeout = 10 * time.Second
	adminShutdownTimeout   = 15 * time.Second
)

// AdminServer exposes the operational HTTP surface: health, stats and
// Prometheus metrics. It is not the request data path.
type AdminServer struct {
	facade *Facade
	logger observability.Logger
	server *http.Server
}

// NewAdminServer builds the admin HTTP server listening on addr.
func NewAdminServer(facade *Facade, logger observability.Logger, addr string) *AdminServer {
	a := &AdminServer{
		facade: facade,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(a.requestIDMiddleware())

	engine.GET("/healthz", a.handleHealthz)
	engine.GET("/readyz", a.handleReadyz)
	engine.GET("/health/servers", a.handleServerHealth)
	engine.POST("/health/check", a.handleForceCheck)
	engine.GET("/stats", a.handleStats)
	engine.POST("/route", a.handleRoute)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: adminReadHeaderTimeout,
	}

	return a
}

// Start serves until the listener fails or Shutdown is called.
func (a *AdminServer) Start() error {
	a.logger.Info("admin server starting", observability.String("addr", a.server.Addr))

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (a *AdminServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, adminShutdownTimeout)
	defer cancel()
	return a.server.Shutdown(ctx)
}

func (a *AdminServer) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = observability.NewRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID),
		)
		c.Next()
	}
}

func (a *AdminServer) handleHealthz(c *gin.Context) {
	sys := a.facade.GetSystemHealth()

	code := http.StatusOK
	if sys.OverallStatus == health.OverallUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, sys)
}

func (a *AdminServer) handleReadyz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (a *AdminServer) handleServerHealth(c *gin.Context) {
	if id := c.Query("server"); id != "" {
		stats, ok := a.facade.GetServerHealthStats(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown server id"})
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}
	c.JSON(http.StatusOK, a.facade.GetAllHealthStats())
}

func (a *AdminServer) handleForceCheck(c *gin.Context) {
	results, err := a.facade.CheckHealth(c.Request.Context(), c.Query("server"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (a *AdminServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.facade.GetRoutingStats())
}

type routeRequestBody struct {
	RoutingKey string `json:"routingKey"`
	ServerID   string `json:"serverId"`
}

func (a *AdminServer) handleRoute(c *gin.Context) {
	var body routeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	serverID, err := a.facade.RouteRequest(c.Request.Context(), router.Request{
		RoutingKey: body.RoutingKey,
		ServerID:   body.ServerID,
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"server": serverID})
}
