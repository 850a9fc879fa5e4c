package ui

import (
	"context"
	"net/http"
	"time"

	"imvqa/app"
	"imvqa/internal"

	"github.com/gin-gonic/gin"
)

// Config holds the JSON API settings
type Config struct {
	Addr           string
	GinMode        string
	MaxUploadBytes int64
	Logger         *internal.Logger
}

// Server serves the plate viewer JSON API
type Server struct {
	router  *gin.Engine
	service *app.AnalysisService
	config  Config
	logger  *internal.Logger
	http    *http.Server
}

// NewServer creates the API server over an analysis service
func NewServer(service *app.AnalysisService, config Config) *Server {
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}
	if config.Logger == nil {
		config.Logger = internal.DefaultLogger
	}
	s := &Server{
		router:  gin.New(),
		service: service,
		config:  config,
		logger:  config.Logger.WithComponent("API"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// Sessions
	api.POST("/sessions", s.handleOpenSession)
	api.GET("/sessions", s.handleListSessions)
	api.DELETE("/sessions/:id", s.handleCloseSession)
	api.GET("/sessions/:id/features", s.handleFeatures)

	// Analysis views
	api.GET("/sessions/:id/wells/:row/:column", s.handleInspectWell)
	api.GET("/sessions/:id/heatmap", s.handleHeatmap)
	api.GET("/sessions/:id/variation", s.handleVariation)
	api.POST("/sessions/:id/selection", s.handleSelection)
	api.GET("/sessions/:id/histogram", s.handleHistogram)
	api.GET("/sessions/:id/report", s.handleReport)

	// Persistence and export
	api.POST("/sessions/:id/save", s.handleSave)
	api.POST("/sessions/:id/export", s.handleExport)
	api.GET("/data", s.handleAboveThreshold)
	api.GET("/analyses", s.handleAnalyses)
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured address until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
