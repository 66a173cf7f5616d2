package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps an http.Handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

type contextKey string

const requestIDKey contextKey = "request_id"

// MiddlewareConfig holds the knobs for the Chain built by DefaultChain.
type MiddlewareConfig struct {
	AllowedOrigins  []string
	AllowedMethods  []string
	AllowedHeaders  []string
	SecurityHeaders map[string]string
	Logger          *zap.Logger
}

// DefaultMiddlewareConfig returns a config for local development and
// same-origin dashboards.
func DefaultMiddlewareConfig(logger *zap.Logger) MiddlewareConfig {
	return MiddlewareConfig{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		SecurityHeaders: map[string]string{
			"X-Content-Type-Options": "nosniff",
			"X-Frame-Options":        "DENY",
			"Referrer-Policy":        "strict-origin-when-cross-origin",
		},
		Logger: logger,
	}
}

// Chain combines middlewares, applying them in the given order.
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultChain builds the standard request pipeline: request ID
// injection, panic recovery, security headers, CORS, and access
// logging.
func DefaultChain(cfg MiddlewareConfig) Middleware {
	return Chain(
		RequestID(),
		Recovery(cfg.Logger),
		Security(cfg.SecurityHeaders),
		CORS(cfg.AllowedOrigins, cfg.AllowedMethods, cfg.AllowedHeaders),
		Logger(cfg.Logger),
	)
}

// RequestID assigns (or passes through) a correlation id per request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = generateRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recovery converts a panic in the handler chain into a 500 response
// instead of crashing the server.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					id := requestIDFrom(r.Context())
					if logger != nil {
						logger.Error("panic recovered",
							zap.String("request_id", id),
							zap.Any("panic", rec),
							zap.String("path", r.URL.Path),
						)
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprintf(w, `{"error":"internal server error","requestId":%q}`, id)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Security sets the configured response headers and blocks obviously
// malicious probing paths.
func Security(headers map[string]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			path := strings.ToLower(r.URL.Path)
			for _, suspicious := range []string{"../", "/.git", "/.env", "/wp-"} {
				if strings.Contains(path, suspicious) {
					http.Error(w, "Not Found", http.StatusNotFound)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and reflects an allowed origin.
func CORS(allowedOrigins, allowedMethods, allowedHeaders []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(allowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logger emits one structured log line per completed request.
func Logger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			if logger != nil {
				logger.Info("request completed",
					zap.String("request_id", requestIDFrom(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", wrapped.statusCode),
					zap.Duration("duration", time.Since(start)),
					zap.String("client_ip", clientIP(r)),
				)
			}
		})
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	mu         sync.Mutex
}

func (w *statusWriter) WriteHeader(code int) {
	w.mu.Lock()
	w.statusCode = code
	w.mu.Unlock()
	w.ResponseWriter.WriteHeader(code)
}
