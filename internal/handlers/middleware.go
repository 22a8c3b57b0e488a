package handlers

import (
	"context"
	"net/http"
	"time"

	"gatekeep/internal/session"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

// loggerContextKey is the context key for the request-scoped logger.
const loggerContextKey contextKey = "logger"

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger tags each request with an id and logs it once served.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()
			entry := log.WithField("request_id", requestID)

			w.Header().Set(RequestIDHeader, requestID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), loggerContextKey, entry)
			next.ServeHTTP(rec, r.WithContext(ctx))

			entry.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}

func (h *Handlers) logger(r *http.Request) logrus.FieldLogger {
	if entry, ok := r.Context().Value(loggerContextKey).(logrus.FieldLogger); ok {
		return entry
	}
	return h.log
}

// RequireLogin redirects anonymous visitors to the login page.
func (h *Handlers) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if !sess.Authenticated() {
			sess.AddFlash(FlashWarning, "You are not logged in!!")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminGate lets a request through only for an authenticated admin session.
// Everyone else is sent to the login page with a warning.
func (h *Handlers) AdminGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		if !sess.Authenticated() || !sess.Admin {
			h.logger(r).WithFields(logrus.Fields{
				"username": sess.Username,
				"path":     r.URL.Path,
			}).Warn("admin access denied")
			sess.AddFlash(FlashWarning, "You are not authorized to access this page!")
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
