package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quilan1/ffxiv-market-query/internal/catalog"
	"github.com/quilan1/ffxiv-market-query/internal/market"
	"github.com/quilan1/ffxiv-market-query/internal/processor"
)

// ServerConfig configures the HTTP server exposing the WebSocket
// streamer, health check, and metrics endpoints.
type ServerConfig struct {
	Addr            string
	MaxActive       int
	UniversalisBase string
	MaxGlobalConns  int64
	MaxPerIPConns   int64
	AllowedOrigins  []string
}

// NewServer builds the gorilla/mux router and http.Server for this
// service, wiring the WebSocket Streamer to the shared catalog and
// processor.
func NewServer(cfg ServerConfig, cat *catalog.Catalog, proc *processor.Processor, getFactory market.HTTPGetFactory, logger *zap.Logger) *http.Server {
	limiter := NewConnLimiter(cfg.MaxGlobalConns, cfg.MaxPerIPConns)
	streamer := NewStreamer(cat, proc, cfg.MaxActive, cfg.UniversalisBase, getFactory, limiter, logger, cfg.AllowedOrigins)

	router := mux.NewRouter()
	router.HandleFunc("/ws/market", streamer.ServeHTTP)
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	chain := DefaultChain(DefaultMiddlewareConfig(logger))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      chain(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming connections may run indefinitely
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Shutdown gracefully stops srv, waiting up to the given timeout for
// in-flight requests (including open WebSocket streams) to finish.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
