package server

import (
	"net"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"igdownloader/pkg/logger"
	"igdownloader/pkg/ratelimit"
)

// clientRateLimit refuses clients that exceed their token bucket
func clientRateLimit(limiter *ratelimit.ClientLimiter, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIP(r)
			if !limiter.Allow(clientID) {
				log.WithField("client", clientID).Warn("client exceeded request rate")
				writeJSON(w, log, http.StatusTooManyRequests, errorResponse{
					Error: "Too many requests. Please try again later.",
					Code:  "RATE_LIMIT_EXCEEDED",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from the forwarding headers when present
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// accessLog writes one line per request through the structured logger
func accessLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqLog := log
			if id := chiMiddleware.GetReqID(r.Context()); id != "" {
				reqLog = log.WithField("http_request_id", id)
			}
			logger.LogRequest(reqLog, r.Method, r.URL.Path, status, float64(time.Since(start).Microseconds())/1000)
		})
	}
}
