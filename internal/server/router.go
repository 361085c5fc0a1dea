package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// ContentHandler serves the generated content API.
type ContentHandler interface {
	Find(w http.ResponseWriter, r *http.Request)
	FindOne(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
}

// ContentTypesHandler serves content type introspection.
type ContentTypesHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
}

// MediaHandler serves the media library.
type MediaHandler interface {
	Upload(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Serve(w http.ResponseWriter, r *http.Request)
}

// Dependencies holds all injectable dependencies used by route handlers.
type Dependencies struct {
	// Health reports backend health; nil means always healthy.
	Health       func(ctx context.Context) error
	Logger       zerolog.Logger
	CORSOrigins  []string
	Content      ContentHandler
	ContentTypes ContentTypesHandler
	Media        MediaHandler
}

// NewRouter builds the chi router with the full route tree and middleware
// stack.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(deps.CORSOrigins))

	r.Get("/health", healthHandler(deps))

	r.Route("/api", func(r chi.Router) {
		r.Use(requireJSON)

		r.Get("/content-types", deps.ContentTypes.List)
		r.Get("/content-types/{name}", deps.ContentTypes.Get)

		if deps.Media != nil {
			r.Post("/upload", deps.Media.Upload)
			r.Get("/upload/files", deps.Media.List)
			r.Get("/upload/files/{id}", deps.Media.Get)
		}

		// Single types use PUT /{route}; collection types PUT /{route}/{id}.
		r.Get("/{route}", deps.Content.Find)
		r.Post("/{route}", deps.Content.Create)
		r.Put("/{route}", deps.Content.Update)
		r.Get("/{route}/{id}", deps.Content.FindOne)
		r.Put("/{route}/{id}", deps.Content.Update)
	})

	if deps.Media != nil {
		r.Get("/uploads/{filename}", deps.Media.Serve)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}

// corsMiddleware allows the configured origins. "*" allows any origin
// without credentials.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}

// healthHandler reports the health status of the application, including a
// backend connectivity check.
func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(r.Context()); err != nil {
				Error(w, http.StatusServiceUnavailable, "DB_UNHEALTHY", "database health check failed", nil)
				return
			}
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
