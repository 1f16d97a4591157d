package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erikmillergalow/impermachat/internal/config"
	"github.com/erikmillergalow/impermachat/internal/middleware"
	"github.com/erikmillergalow/impermachat/internal/rooms"
	"github.com/erikmillergalow/impermachat/internal/templates"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

type Router struct {
	mux      *http.ServeMux
	registry *rooms.Registry
	renderer *templates.Renderer
	logger   *utils.Logger
	cfg      *config.Config
}

// NewRouter creates the HTTP router with configured handlers and middleware
func NewRouter(registry *rooms.Registry, renderer *templates.Renderer, logger *utils.Logger, cfg *config.Config) http.Handler {
	r := &Router{
		mux:      http.NewServeMux(),
		registry: registry,
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
	}

	// Landing page
	r.mux.HandleFunc("GET /{$}", r.IndexHandler)
	r.mux.HandleFunc("POST /{$}", r.CreateRoomHandler)

	// Room endpoints
	r.mux.HandleFunc("GET /room/{room_id}", r.RenderRoomHandler)
	r.mux.HandleFunc("GET /room/{room_id}/connect", r.ConnectHandler)
	r.mux.HandleFunc("POST /room/{room_id}/live", r.TypingHandler)
	r.mux.HandleFunc("POST /room/{room_id}/submit", r.SubmitHandler)
	r.mux.HandleFunc("POST /room/{room_id}/name", r.SetNameHandler)

	// Operational endpoints
	r.mux.HandleFunc("/healthz", r.HealthzHandler)
	r.mux.Handle("/metrics", promhttp.Handler()) // Prometheus metrics endpoint

	// Static assets served from disk
	r.mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(r.cfg.AssetsPath))))

	// Identity runs innermost so every handler sees the connection cookie;
	// request ID and tracing wrap the whole surface.
	var handler http.Handler = r.mux
	handler = middleware.ConnectionIDMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.TracingMiddleware(handler)

	return handler
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
