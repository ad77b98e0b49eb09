// Package location resolves the caller's city from their public IP address.
package location

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/observability"
)

// DefaultURL is the ipapi endpoint that reports the requester's location.
const DefaultURL = "https://ipapi.co/json/"

// maxBodyBytes bounds how much of the lookup response is read.
const maxBodyBytes = 64 * 1024

// Resolver yields a city name, or false when none could be determined.
type Resolver interface {
	ResolveCity(ctx context.Context) (string, bool)
}

// IPResolver looks up the city for the host's public IP.
type IPResolver struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewIPResolver returns a resolver for url (DefaultURL when empty).
func NewIPResolver(url string, timeout time.Duration, logger *zap.Logger) *IPResolver {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPResolver{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type ipapiResponse struct {
	City string `json:"city"`
}

// ResolveCity returns the detected city. Every failure collapses to ("", false); the
// cause is only logged.
func (r *IPResolver) ResolveCity(ctx context.Context) (string, bool) {
	logger := observability.LoggerFromContext(ctx, r.logger)

	city, err := r.lookup(ctx)
	if err != nil {
		observability.LocationLookupsTotal.WithLabelValues("error").Inc()
		logger.Debug("location lookup failed", zap.String("url", r.url), zap.Error(err))
		return "", false
	}
	if city == "" {
		observability.LocationLookupsTotal.WithLabelValues("empty").Inc()
		logger.Debug("location lookup returned no city", zap.String("url", r.url))
		return "", false
	}
	observability.LocationLookupsTotal.WithLabelValues("resolved").Inc()
	return city, true
}

func (r *IPResolver) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	var out ipapiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return strings.TrimSpace(out.City), nil
}
