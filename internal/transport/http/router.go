package http

import (
	"net/http"
	"strings"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/telemetry"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"github.com/Akmalwizdom/onyx-shortener/internal/transport/http/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var spanNames = map[string]string{
	"GET /health":       "health",
	"GET /metrics":      "metrics",
	"POST /shorten":     "links.create",
	"POST /unlock":      "links.unlock",
	"GET /link-details": "links.details",
	"GET /{code}":       "links.redirect",
	"POST /{code}":      "links.redirect_post",
}

type RouterOptions struct {
	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
	}
}

func NewRouter(cfg *config.Config, linkService *links.Service) http.Handler {
	return NewRouterWithOptions(cfg, linkService, DefaultRouterOptions())
}

func NewRouterWithOptions(cfg *config.Config, linkService *links.Service, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler()
	linksHandler := NewLinksHandler(cfg, linkService)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	mux.HandleFunc("POST /shorten", linksHandler.Create)
	mux.HandleFunc("POST /unlock", linksHandler.Unlock)
	mux.HandleFunc("GET /link-details", linksHandler.Details)

	// Catch-all short code routes; registered last so the named routes above
	// win on exact match.
	mux.HandleFunc("GET /{code}", linksHandler.Redirect)
	mux.HandleFunc("POST /{code}", linksHandler.RedirectPost)

	var innerHandler http.Handler = mux
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			key := r.Method + " " + r.Pattern
			if name, ok := spanNames[key]; ok {
				return name
			}
			if r.Pattern != "" {
				return r.Pattern
			}
			path := strings.TrimSpace(r.URL.Path)
			if path == "" {
				path = "/"
			}
			return path
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, cfg.App.Name, otelOptions...)
}
