package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-desk/internal/models"
	"github.com/kjstillabower/weather-desk/internal/observability"
)

// WeatherFetcher is implemented by the service layer. Fetching through it populates the cache.
// Declared here to avoid a dependency on the service package.
type WeatherFetcher interface {
	GetCurrent(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error)
	GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error)
}

// CacheWarmer prefetches current conditions and forecasts for a list of cities.
type CacheWarmer struct {
	fetcher     WeatherFetcher
	logger      *zap.Logger
	concurrency int
}

// NewCacheWarmer creates a CacheWarmer. concurrency bounds parallel fetches; <= 0 means 4.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger, concurrency int) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, concurrency: concurrency}
}

// Warm fetches every city in unit. A failing city does not stop the others;
// all failures are joined into the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, cities []string, unit models.Unit) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("cities", len(cities)), zap.String("unit", string(unit)))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, city := range cities {
		city := city
		g.Go(func() error {
			err := w.warmCity(gctx, city, unit)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	observability.CacheWarmingDurationSeconds.Observe(duration.Seconds())
	w.logger.Info("cache warming complete",
		zap.Int("cities", len(cities)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration.Seconds()),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

func (w *CacheWarmer) warmCity(ctx context.Context, city string, unit models.Unit) error {
	if _, err := w.fetcher.GetCurrent(ctx, city, unit); err != nil {
		return fmt.Errorf("warm %s current: %w", city, err)
	}
	if _, err := w.fetcher.GetForecast(ctx, city, unit); err != nil {
		return fmt.Errorf("warm %s forecast: %w", city, err)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at interval until ctx is done.
// cities is called before every run so the list can follow the search history.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, cities func() []string, unit func() models.Unit, interval time.Duration) error {
	if err := w.Warm(ctx, cities(), unit()); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, cities(), unit()); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
