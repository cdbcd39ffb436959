// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/handler"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/middleware"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/api/service"
	"github.com/brave-experiments/hardware-backed-webcrypto/internal/webcrypto"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version string
	Backend string // active backend adapter name, for /health
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config, dispatcher *webcrypto.Dispatcher) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS)

	// Health endpoints
	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Backend)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// OpenAPI spec
	r.Get("/api/openapi.yaml", serveOpenAPISpec)

	keyService := service.NewKeyService(dispatcher)
	keyHandler := handler.NewKeyHandler(keyService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/keys", func(r chi.Router) {
			r.Post("/generate", keyHandler.Generate)
			r.Get("/", keyHandler.List)
			r.Get("/{identifier}", keyHandler.Get)
			r.Post("/{identifier}/update", keyHandler.Update)
			r.Post("/{identifier}/sign", keyHandler.Sign)
			r.Post("/{identifier}/verify", keyHandler.Verify)
			r.Get("/{identifier}/public", keyHandler.Public)
			r.Delete("/{identifier}", keyHandler.Delete)
		})
	})

	return r
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
