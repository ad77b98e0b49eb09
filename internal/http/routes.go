package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-desk/internal/observability"
)

// RouterConfig holds the per-route protections.
type RouterConfig struct {
	RequestTimeout time.Duration
	// Limiter guards the weather and auth routes. Nil disables rate limiting.
	Limiter *rate.Limiter
}

// NewRouter mounts h's routes. Auth and contact routes exist only when h has those stores.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	weather := router.PathPrefix("/weather").Subrouter()
	weather.Use(RateLimitMiddleware(cfg.Limiter, logger))
	weather.Use(TimeoutMiddleware(cfg.RequestTimeout))
	weather.HandleFunc("", h.GetWeather).Methods(http.MethodGet)
	weather.HandleFunc("/search", h.PostSearch).Methods(http.MethodPost)
	weather.HandleFunc("/location", h.PostLocation).Methods(http.MethodPost)
	weather.HandleFunc("/unit", h.PostToggleUnit).Methods(http.MethodPost)
	weather.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	weather.HandleFunc("/history/select", h.PostSelectHistory).Methods(http.MethodPost)

	if h.auth != nil {
		authRouter := router.PathPrefix("/auth").Subrouter()
		authRouter.Use(RateLimitMiddleware(cfg.Limiter, logger))
		authRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
		authRouter.HandleFunc("/login", h.PostLogin).Methods(http.MethodPost)
		authRouter.HandleFunc("/register", h.PostRegister).Methods(http.MethodPost)
	}
	if h.contacts != nil {
		contactRouter := router.PathPrefix("/contacts").Subrouter()
		contactRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
		contactRouter.HandleFunc("", h.ListContacts).Methods(http.MethodGet)
		contactRouter.HandleFunc("", h.CreateContact).Methods(http.MethodPost)
		contactRouter.HandleFunc("/{id:[0-9]+}", h.UpdateContact).Methods(http.MethodPut)
		contactRouter.HandleFunc("/{id:[0-9]+}", h.DeleteContact).Methods(http.MethodDelete)
	}
	return router
}
