package ui

import (
	"imvqa/ui/middleware"

	"github.com/gin-gonic/gin"
)

// setupMiddleware configures Gin middleware
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestLogger(s.logger))

	// Uploads are parsed in memory; cap them before multipart parsing starts
	if s.config.MaxUploadBytes > 0 {
		s.router.Use(middleware.MaxBodySize(s.config.MaxUploadBytes))
	}
}
