// Package http is the JSON boundary of weather-desk: weather actions, history, health,
// metrics and, when a database is configured, login and the contact book.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/auth"
	"github.com/kjstillabower/weather-desk/internal/contacts"
	"github.com/kjstillabower/weather-desk/internal/controller"
	"github.com/kjstillabower/weather-desk/internal/lifecycle"
	"github.com/kjstillabower/weather-desk/internal/observability"
	"github.com/kjstillabower/weather-desk/internal/traffic"
)

const maxBodyBytes = 1 << 20

// WeatherController is the interaction state behind the /weather routes.
type WeatherController interface {
	View() controller.View
	Search(ctx context.Context, city string) *controller.Task
	SelectHistory(ctx context.Context, city string) *controller.Task
	UseLocation(ctx context.Context) *controller.Task
	ToggleUnit(ctx context.Context) *controller.Task
}

// HistoryLister returns past searches, most recent first.
type HistoryLister interface {
	Entries() []string
}

// APIKeyValidator checks the upstream weather API key.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// Authenticator checks and registers credentials.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.User, error)
	Register(ctx context.Context, username, password string) (auth.User, error)
}

// ContactStore is the contact book.
type ContactStore interface {
	List(ctx context.Context, search string) ([]contacts.Contact, error)
	Create(ctx context.Context, in contacts.Input) (contacts.Contact, error)
	Update(ctx context.Context, id int64, in contacts.Input) (contacts.Contact, error)
	Delete(ctx context.Context, id int64) error
}

// HealthConfig holds the health thresholds and optional dependency probes.
type HealthConfig struct {
	ErrorWindow  time.Duration
	ErrorRatePct int
	// CachePing checks memcached reachability. Nil for the in-memory backend.
	CachePing func() error
	// DBPing checks the database. Nil when no DSN is configured.
	DBPing  func(ctx context.Context) error
	Version string
}

// Deps are the collaborators of a Handler. Auth and Contacts are nil without a database.
type Deps struct {
	Controller WeatherController
	History    HistoryLister
	APIKey     APIKeyValidator
	Auth       Authenticator
	Contacts   ContactStore
	Health     *HealthConfig
	Logger     *zap.Logger
}

// Handler serves the HTTP routes.
type Handler struct {
	controller WeatherController
	history    HistoryLister
	apiKey     APIKeyValidator
	auth       Authenticator
	contacts   ContactStore
	health     *HealthConfig
	logger     *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a Handler over d.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		controller: d.Controller,
		history:    d.History,
		apiKey:     d.APIKey,
		auth:       d.Auth,
		contacts:   d.Contacts,
		health:     d.Health,
		logger:     d.Logger,
	}
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "api_key_invalid" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if h.health != nil {
		if h.health.CachePing != nil {
			checks["cache"] = probe(h.health.CachePing())
		}
		if h.health.DBPing != nil {
			checks["database"] = probe(h.health.DBPing(r.Context()))
		}
		if h.health.Version != "" {
			version = h.health.Version
		}
	}
	writeJSON(w, result.statusCode, map[string]any{
		"status":    result.status,
		"service":   "weather-desk",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func probe(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// computeHealthStatus evaluates, in order: lifecycle phase, API key, error rate.
// Cache and database probes are reported as checks but do not change the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	switch lifecycle.Current() {
	case lifecycle.PhaseDraining:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.PhaseStarting:
		return healthResult{"starting", http.StatusServiceUnavailable, "starting"}
	}
	if h.apiKey != nil {
		if err := h.apiKey.ValidateAPIKey(ctx); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
	}
	if h.health != nil && h.health.ErrorWindow > 0 && h.health.ErrorRatePct > 0 {
		errs, total := traffic.ErrorRate(h.health.ErrorWindow)
		if total > 0 && errs*100 >= h.health.ErrorRatePct*total {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeAppError maps the apperr kind of err to a status and writes its display message.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case apperr.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case apperr.KindUnauthorized:
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case apperr.KindDatabase:
		status, code = http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE"
	case apperr.KindNetwork:
		status, code = http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	}
	observability.LoggerFromContext(r.Context(), h.logger).Debug("request failed",
		zap.Int("status", status), zap.Error(err))
	writeError(w, r, status, code, apperr.Message(err))
}

// decodeBody decodes a JSON request body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
