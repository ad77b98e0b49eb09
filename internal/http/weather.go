package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/controller"
	"github.com/kjstillabower/weather-desk/internal/observability"
)

type cityRequest struct {
	City string `json:"city"`
}

// GetWeather handles GET /weather: the current view.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.View())
}

// PostSearch handles POST /weather/search {"city": "..."}.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	var body cityRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	h.respondTask(w, r, h.controller.Search(r.Context(), body.City))
}

// PostLocation handles POST /weather/location.
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	h.respondTask(w, r, h.controller.UseLocation(r.Context()))
}

// PostToggleUnit handles POST /weather/unit.
func (h *Handler) PostToggleUnit(w http.ResponseWriter, r *http.Request) {
	h.respondTask(w, r, h.controller.ToggleUnit(r.Context()))
}

// PostSelectHistory handles POST /weather/history/select {"city": "..."}.
func (h *Handler) PostSelectHistory(w http.ResponseWriter, r *http.Request) {
	var body cityRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	h.respondTask(w, r, h.controller.SelectHistory(r.Context(), body.City))
}

// GetHistory handles GET /weather/history?limit=n.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries := []string{}
	if h.history != nil {
		entries = append(entries, h.history.Entries()...)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// respondTask waits for a controller action and writes the view it produced. An action
// error is already part of the view, so the status is 200 either way. When the request
// deadline passes first the controller's current view is returned; the action keeps running.
func (h *Handler) respondTask(w http.ResponseWriter, r *http.Request, t *controller.Task) {
	view, err := t.Wait(r.Context())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		observability.LoggerFromContext(r.Context(), h.logger).Debug("weather action still running", zap.Error(err))
		view = h.controller.View()
	}
	writeJSON(w, http.StatusOK, view)
}
