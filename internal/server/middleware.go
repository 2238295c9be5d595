package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/handlers"
)

// withMiddleware wraps the router with the middleware chain. Applied in
// reverse order (last applied = first executed).
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = s.recoveryMiddleware(handler)
	handler = s.rateLimitMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// loggingMiddleware logs HTTP requests and responses.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logEvent := s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr)
		if r.URL.RawQuery != "" {
			logEvent.Str("query", r.URL.RawQuery)
		}
		logEvent.Msg("HTTP request")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP response")
	})
}

// metricsMiddleware counts requests by method and status class.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		statusClass := fmt.Sprintf("%dxx", rw.statusCode/100)
		s.app.Metrics.HTTPRequestsTotal.WithLabelValues(r.Method, statusClass).Inc()
	})
}

// corsMiddleware handles CORS headers for the configured origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed matches an Origin header against the configured list, which
// supports exact values and "prefix*" wildcards.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.app.Config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

// rateLimitMiddleware enforces per-client-IP limits: a global API limit plus
// tighter limits for the import and settings endpoints.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !s.limiters.allow(ip, r.URL.Path) {
			s.app.Metrics.RateLimitedTotal.Inc()

			limited := common.NewRecoverableError(common.ErrRateLimitExceeded, "Rate limit exceeded, try again later")
			limited.RetryAfter = 60
			handlers.WriteError(w, limited, s.app.Config.IsProduction())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.app.Logger.Error().
					Str("error", fmt.Sprintf("%v", err)).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// rateLimiters holds per-IP token buckets for each limit scope.
type rateLimiters struct {
	mu             sync.Mutex
	globalBuckets  map[string]*rate.Limiter
	importBuckets  map[string]*rate.Limiter
	settingBuckets map[string]*rate.Limiter

	globalRate   rate.Limit
	importRate   rate.Limit
	settingsRate rate.Limit

	globalBurst   int
	importBurst   int
	settingsBurst int
}

func newRateLimiters(config *common.RateLimitConfig) *rateLimiters {
	return &rateLimiters{
		globalBuckets:  make(map[string]*rate.Limiter),
		importBuckets:  make(map[string]*rate.Limiter),
		settingBuckets: make(map[string]*rate.Limiter),
		globalRate:     perMinute(config.GlobalPerMinute),
		importRate:     perMinute(config.ImportPerMinute),
		settingsRate:   perMinute(config.SettingsPerMinute),
		globalBurst:    config.GlobalPerMinute,
		importBurst:    config.ImportPerMinute,
		settingsBurst:  config.SettingsPerMinute,
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(n) / 60.0)
}

// allow checks every applicable scope. A request that exhausts any scope is
// rejected.
func (l *rateLimiters) allow(ip, path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.take(l.globalBuckets, ip, l.globalRate, l.globalBurst) {
		return false
	}
	if strings.HasPrefix(path, "/api/import") {
		return l.take(l.importBuckets, ip, l.importRate, l.importBurst)
	}
	if strings.HasPrefix(path, "/api/settings") {
		return l.take(l.settingBuckets, ip, l.settingsRate, l.settingsBurst)
	}
	return true
}

func (l *rateLimiters) take(buckets map[string]*rate.Limiter, ip string, limit rate.Limit, burst int) bool {
	limiter, ok := buckets[ip]
	if !ok {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(limit, burst)
		buckets[ip] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	// Trust the first X-Forwarded-For entry when present; direct deploys see
	// the socket address.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
