package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/academia-core/internal/auth"
)

// healthCheckTimeout bounds the database ping made by the health endpoint.
const healthCheckTimeout = 2 * time.Second

// defaultWSPath is used when the WebSocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth, bind the listener accordingly)
	r.Handle("/metrics", s.metrics.handler())

	// Uploaded syllabi when the disk store is in use
	if s.uploadsDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadsDir)))
		r.Handle("/uploads/*", fs)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Credential endpoints (no token required, rate limited per IP)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		// WebSocket (token checked by the gate inside the handler so a
		// rejection can be reported as a close frame)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requireOperation(auth.OpAuthMe)).Get("/auth/me", s.handleMe)

			r.Route("/courses", func(r chi.Router) {
				r.With(s.requireOperation(auth.OpCourseCreate)).Post("/", s.handleCreateCourse)
				r.With(s.requireOperation(auth.OpCourseBrowse)).Get("/", s.handleBrowseCourses)
				r.With(s.requireOperation(auth.OpCourseEnrolled)).Get("/enrolled", s.handleEnrolledCourses)
				r.With(s.requireOperation(auth.OpCourseEnroll)).Patch("/enroll/{id}", s.handleEnroll)
				r.With(s.requireOperation(auth.OpCourseDrop)).Patch("/drop/{id}", s.handleDrop)
				r.With(s.requireOperation(auth.OpEnrollmentApprove)).Patch("/approve/{enrollmentId}", s.handleApproveEnrollment)
				r.With(s.requireOperation(auth.OpEnrollmentReject)).Patch("/reject/{enrollmentId}", s.handleRejectEnrollment)
				r.With(s.requireOperation(auth.OpCourseUpdate)).Patch("/{id}", s.handleUpdateCourse)
			})

			r.With(s.requireOperation(auth.OpAuditList)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"wsClients": s.hub.ClientCount(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
