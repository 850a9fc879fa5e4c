package ui

import (
	"net/http"

	"imvqa/internal/errors"

	"github.com/gin-gonic/gin"
)

// statusFor maps an error code to the HTTP status returned to clients
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeDataIntegrity, errors.CodeDegenerateControl:
		return http.StatusUnprocessableEntity
	case errors.CodeConfigInvalid, errors.CodeExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error body and logs server-side failures
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	} else {
		s.logger.Debug("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}

func badRequest(message string) error {
	return errors.InvalidInput(message)
}
