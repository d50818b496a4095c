package server

import (
	"github.com/gin-gonic/gin"

	"github.com/wordflowlab/abapagents/server/observability"
)

// Option is a function that configures a Server
type Option func(*Server)

// WithMiddleware adds custom gin middlewares to the router
func WithMiddleware(middlewares ...gin.HandlerFunc) Option {
	return func(s *Server) {
		s.extra = append(s.extra, middlewares...)
	}
}

// WithHealthCheck registers an additional check reported by /health
func WithHealthCheck(checks ...observability.HealthCheck) Option {
	return func(s *Server) {
		for _, check := range checks {
			s.health.RegisterCheck(check)
		}
	}
}
