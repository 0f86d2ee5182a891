package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cheapfinder/backend/internal/logger"
)

// RequestLogging copies chi's request ID into the logging context so
// handler and service logs carry it. Must run after middleware.RequestID.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
