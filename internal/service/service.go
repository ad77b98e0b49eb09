package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/apperr"
	"github.com/kjstillabower/weather-desk/internal/cache"
	"github.com/kjstillabower/weather-desk/internal/client"
	"github.com/kjstillabower/weather-desk/internal/models"
	"github.com/kjstillabower/weather-desk/internal/observability"
	"github.com/kjstillabower/weather-desk/internal/traffic"
)

const (
	kindCurrent  = "current"
	kindForecast = "forecast"
)

// WeatherService fetches weather through an optional cache (cache-aside) and tags
// upstream failures with an apperr kind for display.
type WeatherService struct {
	client client.WeatherClient
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewWeatherService creates a WeatherService. A nil cache or a zero ttl disables caching.
func NewWeatherService(c client.WeatherClient, store cache.Cache, ttl time.Duration, logger *zap.Logger) *WeatherService {
	if store == nil || ttl <= 0 {
		store = cache.NoopCache{}
		ttl = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{client: c, cache: store, ttl: ttl, logger: logger}
}

// GetCurrent returns current conditions for city in unit.
func (s *WeatherService) GetCurrent(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error) {
	return fetch(ctx, s, kindCurrent, city, unit, func() (models.WeatherRecord, error) {
		return s.client.GetCurrentWeather(ctx, strings.TrimSpace(city), unit)
	})
}

// GetForecast returns the 3-hourly forecast samples for city in unit.
func (s *WeatherService) GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error) {
	return fetch(ctx, s, kindForecast, city, unit, func() ([]models.ForecastSample, error) {
		return s.client.GetForecast(ctx, strings.TrimSpace(city), unit)
	})
}

// ValidateAPIKey delegates to the client. Used by the health check.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

func fetch[T any](ctx context.Context, s *WeatherService, kind, city string, unit models.Unit, load func() (T, error)) (T, error) {
	var zero T
	logger := observability.LoggerFromContext(ctx, s.logger)
	key := cacheKey(kind, unit, city)
	start := time.Now()

	if s.ttl > 0 {
		raw, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				observability.CacheHitsTotal.WithLabelValues(kind).Inc()
				traffic.RecordSuccess()
				logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
				return v, nil
			}
			observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		default:
			observability.CacheMissesTotal.WithLabelValues(kind).Inc()
		}
	}

	v, err := load()
	if err != nil {
		tagged := tagUpstreamError(city, err)
		if apperr.Is(tagged, apperr.KindNotFound) {
			traffic.RecordSuccess()
		} else {
			traffic.RecordError()
		}
		logger.Info("weather fetch failed",
			zap.String("kind", kind),
			zap.String("city", city),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return zero, tagged
	}
	traffic.RecordSuccess()

	if s.ttl > 0 {
		if raw, err := json.Marshal(v); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		} else if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return v, nil
}

// tagUpstreamError maps a client error to the kind and message shown to the user.
func tagUpstreamError(city string, err error) error {
	if errors.Is(err, client.ErrLocationNotFound) {
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("City %q not found", strings.TrimSpace(city)), err)
	}
	return apperr.Wrap(apperr.KindNetwork, "Unable to fetch weather data", err)
}

func cacheKey(kind string, unit models.Unit, city string) string {
	return kind + ":" + string(unit) + ":" + normalizeCity(city)
}

// normalizeCity trims whitespace and lowercases so cache keys ignore input casing.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
