// Package gateway exposes a Mux over HTTP and WebSocket: long-lived WS
// subscription streams per trigger, a publish endpoint, and introspection.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/triggermux/pkg/config"
	"github.com/DeBrosOfficial/triggermux/pkg/logging"
	"github.com/DeBrosOfficial/triggermux/pkg/mux"
)

// Gateway bridges HTTP/WS clients onto one Mux.
type Gateway struct {
	logger *logging.ColoredLogger
	cfg    config.GatewayConfig
	mux    *mux.Mux
}

// New creates a gateway for an existing mux.
func New(logger *logging.ColoredLogger, m *mux.Mux, cfg config.GatewayConfig) *Gateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	g := &Gateway{
		logger: logger,
		cfg:    cfg,
		mux:    m,
	}
	g.logger.ComponentInfo(logging.ComponentGateway, "gateway initialized",
		zap.String("listen_addr", cfg.ListenAddr))
	return g
}

// Routes returns the http.Handler with all routes and middleware configured.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.healthHandler)
	r.Get("/v1/subscriptions/ws", g.subscribeWebsocketHandler)
	r.Post("/v1/publish", g.publishHandler)
	r.Get("/v1/stats", g.statsHandler)

	return r
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UnixMilli()})
}

// statsHandler reports the active topics and their subscriber counts.
func (g *Gateway) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": g.mux.Stats()})
}

// writeJSON writes JSON with status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a standardized JSON error
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
