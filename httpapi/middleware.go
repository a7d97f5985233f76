package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "unmatched"

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request and records request metrics under
// the matched route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			// unmatched paths share one label so scanners cannot grow the registry
			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.ObserveRequest(r.Method, route, status, elapsed)

			s.logger.Debug("request handled",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("elapsed", elapsed))
		}()

		next.ServeHTTP(ww, r)
	})
}

// admit applies the global and per-client rate limits.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.limiter.Allow(clientKey(r)); reason != "" {
			s.reject(w, r, reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string) {
	s.metrics.RateLimited(reason)
	s.logger.Warn("request rejected",
		zap.String("reason", reason),
		zap.String("remote", r.RemoteAddr))
	w.Header().Set("Content-Type", "application/json")
	writeError(w, http.StatusTooManyRequests, "Too many requests")
}

// clientKey identifies the caller by address. Forwarding headers only count
// when server.trust_proxy_headers mounts middleware.RealIP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
