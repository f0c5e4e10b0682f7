package handler

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Siddarth2230/shortlink/internal/middleware"
)

// NewRouter wires every route behind request logging, metrics and CORS.
func NewRouter(h *LinkHandler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/", h.Home).Methods(http.MethodGet)

	api := r.PathPrefix("/api/urls").Subrouter()
	api.HandleFunc("", h.CreateLink).Methods(http.MethodPost)
	api.HandleFunc("/{code}/stats", h.Stats).Methods(http.MethodGet)
	api.HandleFunc("/{code}/visits", h.Visits).Methods(http.MethodGet)
	api.HandleFunc("/{code}", h.DeleteLink).Methods(http.MethodDelete)

	r.HandleFunc("/{code}", h.Redirect).Methods(http.MethodGet)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})(r)
}
