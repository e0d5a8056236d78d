package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/parth2411/aerialintelligence/internal/config"
	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/pipeline"
	"github.com/parth2411/aerialintelligence/internal/service"
	"github.com/parth2411/aerialintelligence/internal/state"
)

// StatsProvider exposes pipeline session counters
type StatsProvider interface {
	GetStats() pipeline.StatsSnapshot
}

// ResultReader reads persisted frame results and alerts
type ResultReader interface {
	GetRecentFrameResults(ctx context.Context, limit int) ([]state.FrameResultRecord, error)
	GetRecentAlerts(ctx context.Context, limit int) ([]state.AlertRecord, error)
}

// StatusProvider exposes service lifecycle statuses
type StatusProvider interface {
	GetAllStatuses() map[string]*service.ServiceStatus
}

// Server represents the status API service
type Server struct {
	*service.ServiceBase
	config     config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	hub        *Hub
	stats      StatsProvider
	results    ResultReader
	statuses   StatusProvider
	startTime  time.Time
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard runs on the local network
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer creates the status API server
func NewServer(cfg config.WebConfig, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	return &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		logger:      log,
		router:      router,
		hub:         NewHub(log),
		startTime:   time.Now(),
	}
}

// SetPipelineDependency sets the stats source
func (s *Server) SetPipelineDependency(stats StatsProvider) {
	s.stats = stats
}

// SetStateDependency sets the result store reader
func (s *Server) SetStateDependency(results ResultReader) {
	s.results = results
}

// SetStatusDependency sets the service status source
func (s *Server) SetStatusDependency(statuses StatusProvider) {
	s.statuses = statuses
}

// BroadcastResult pushes a finished frame result to websocket clients.
// Safe to call from pipeline goroutines.
func (s *Server) BroadcastResult(result pipeline.FrameResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.LogError("Failed to encode result for broadcast", err, "frame_id", result.FrameID)
		return
	}
	s.hub.Broadcast(payload)
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	s.setupRoutes()
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Websocket connections stay open, no write/idle timeout
		WriteTimeout: 0,
		IdleTimeout:  0,
	}

	go func() {
		s.LogInfo("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", addr)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.LogInfo("Web server started", "address", addr)
		return nil
	}
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/stats", s.handleStats)
		api.GET("/alerts", s.handleAlerts)
		api.GET("/results/recent", s.handleRecentResults)
	}

	s.router.GET("/ws", s.handleWebsocket)
}

// handleStatus reports uptime, service states and the stats summary
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"status":    "running",
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC(),
	}

	if s.statuses != nil {
		services := make(map[string]gin.H)
		for name, svcStatus := range s.statuses.GetAllStatuses() {
			entry := gin.H{
				"status": svcStatus.GetStatus(),
				"uptime": svcStatus.GetUptime().String(),
			}
			if err := svcStatus.GetError(); err != nil {
				entry["error"] = err.Error()
			}
			services[name] = entry
		}
		status["services"] = services
	}

	if s.stats != nil {
		status["pipeline"] = s.stats.GetStats()
	}

	c.JSON(http.StatusOK, status)
}

// handleStats reports the pipeline session counters
func (s *Server) handleStats(c *gin.Context) {
	if s.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline not available"})
		return
	}
	c.JSON(http.StatusOK, s.stats.GetStats())
}

// handleAlerts lists recently dispatched alerts
func (s *Server) handleAlerts(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not available"})
		return
	}

	alerts, err := s.results.GetRecentAlerts(c.Request.Context(), queryLimit(c))
	if err != nil {
		s.LogError("Failed to read alerts", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// handleRecentResults lists recent frame results
func (s *Server) handleRecentResults(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not available"})
		return
	}

	results, err := s.results.GetRecentFrameResults(c.Request.Context(), queryLimit(c))
	if err != nil {
		s.LogError("Failed to read frame results", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read results"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// handleWebsocket upgrades the connection and attaches it to the hub
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.LogError("Websocket upgrade failed", err, "client_ip", c.ClientIP())
		return
	}

	s.hub.Register(conn)

	// The feed is one-way. Reading only detects client disconnects.
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
