package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"posprint/internal/config"
	"posprint/internal/httpapi/handlers"
	"posprint/internal/httpkit"
	"posprint/internal/pkg/errors"
	"posprint/internal/pkg/logger"
	"posprint/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps
	HTTP     config.HTTPConfig
	Log      *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	// Point-of-sale front ends run on arbitrary local origins.
	origins := d.HTTP.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.MaxBody(d.HTTP.MaxBodyBytes))
	if d.HTTP.HandlerTimeout > 0 {
		r.Use(middleware.Timeout(d.HTTP.HandlerTimeout))
	}

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(h.Log(), fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- PRINTING ----
	r.Post("/print_text", wrap(h.PrintText))
	r.Post("/print", wrap(h.Print))

	// ---- DEVICE ----
	r.Post("/open_drawer", wrap(h.OpenDrawer))
	r.Post("/cut_paper", wrap(h.CutPaper))
	r.Post("/clear_queue", wrap(h.ClearQueue))
	r.Get("/printers", wrap(h.Printers))

	// ---- STATUS ----
	r.Get("/status", wrap(h.Status))
	r.Get("/journal", wrap(h.Journal))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, errors.CodeNotFound, "endpoint not found", nil)
	})

	return r
}
