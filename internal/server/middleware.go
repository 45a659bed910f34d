package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kuwago-ai/datagate/internal/alerts"
	"github.com/kuwago-ai/datagate/internal/events"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// loggingMiddleware logs HTTP requests with redacted headers
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		s.logger.WithRequestID(requestID).Info("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Any("headers", logger.SafeHeaders(r.Header)),
		)

		next.ServeHTTP(rw, r)

		s.logger.WithRequestID(requestID).Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_size", rw.size),
		)
	})
}

// throttleMiddleware applies the server-wide smoothing limiter ahead of the
// per-key fixed windows.
func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.throttle != nil && !s.throttle.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "server is at capacity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the category's fixed window and records usage
// for anomaly monitoring. The anomaly signal is advisory and never blocks
// the request here; the window decision does.
func (s *Server) rateLimitMiddleware(category string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r)
		userID := r.Header.Get("X-User-ID")
		requestID := getRequestID(r.Context())

		decision, err := s.limiter.Allow(r.Context(), category, userID, clientIP)
		if err != nil {
			// Store failure must not take the gate down with it.
			s.logger.WithRequestID(requestID).Error("Rate limit check failed", zap.Error(err))
		} else if decision.Limited {
			s.hub.Publish(events.Event{
				Type:      events.TypeRateLimit,
				RequestID: requestID,
				Data: events.RateLimitEvent{
					Route:    r.URL.Path,
					ClientIP: clientIP,
					Category: category,
					ResetMS:  decision.ResetIn.Milliseconds(),
				},
			})
			s.persistAlert(r.Context(), alerts.Alert{
				Kind:     alerts.KindRateLimit,
				Route:    r.URL.Path,
				ClientIP: clientIP,
				UserID:   userID,
				Reason:   fmt.Sprintf("window for %q exhausted, resets in %s", category, decision.ResetIn),
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.ResetIn.Seconds())+1))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)

		signal := s.tracker.Record(usageEvent(r, category, clientIP, userID))
		if signal.Anomaly {
			s.hub.Publish(events.Event{
				Type:      events.TypeUsageAnomaly,
				RequestID: requestID,
				Data: events.UsageAnomalyEvent{
					Route:       r.URL.Path,
					ClientIP:    clientIP,
					Category:    category,
					Reason:      signal.Reason,
					RecentCount: signal.RecentCount,
					Stats:       signal.Stats,
				},
			})
			s.persistAlert(r.Context(), alerts.Alert{
				Kind:     alerts.KindAnomaly,
				Route:    r.URL.Path,
				ClientIP: clientIP,
				UserID:   userID,
				Reason:   signal.Reason,
			})
		}
	})
}

// persistAlert writes an alert when the sink is configured, best-effort
func (s *Server) persistAlert(ctx context.Context, alert alerts.Alert) {
	if s.alertStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.alertStore.Insert(ctx, alert); err != nil {
		s.logger.Error("Failed to persist alert", zap.Error(err))
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
