package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mediabridge/internal/http/handlers"
	"mediabridge/internal/infra"
	"mediabridge/internal/middleware"
)

// NewRouter wires the HTTP surface: catalog browsing, node execution, and
// run history.
func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
	)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/nodes", func(r chi.Router) {
		r.Get("/", app.NodesList)
		r.Get("/{name}", app.NodesGet)
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).
			Post("/{name}/execute", app.NodesExecute)
	})

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", app.RunsList)
		r.Get("/{id}", app.RunsGet)
	})

	return r
}
