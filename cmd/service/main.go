package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-desk/internal/auth"
	"github.com/kjstillabower/weather-desk/internal/cache"
	"github.com/kjstillabower/weather-desk/internal/circuitbreaker"
	"github.com/kjstillabower/weather-desk/internal/client"
	"github.com/kjstillabower/weather-desk/internal/config"
	"github.com/kjstillabower/weather-desk/internal/contacts"
	"github.com/kjstillabower/weather-desk/internal/controller"
	"github.com/kjstillabower/weather-desk/internal/database"
	"github.com/kjstillabower/weather-desk/internal/history"
	httphandler "github.com/kjstillabower/weather-desk/internal/http"
	"github.com/kjstillabower/weather-desk/internal/lifecycle"
	"github.com/kjstillabower/weather-desk/internal/location"
	"github.com/kjstillabower/weather-desk/internal/observability"
	"github.com/kjstillabower/weather-desk/internal/service"
)

const breakerComponent = "weather_api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		weatherClient.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        breakerComponent,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}))
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	// closers are released by FlushTelemetry at shutdown.
	var closers []io.Closer

	var store cache.Cache
	var cachePing func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		store, cachePing = mc, mc.Ping
		closers = append(closers, mc)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryCache(cfg.CacheSizeBytes)
		logger.Info("cache backend: in_memory", zap.Int("size_bytes", cfg.CacheSizeBytes))
	}
	weatherService := service.NewWeatherService(weatherClient, store, cfg.CacheTTL, logger)

	historyStore := history.Load(cfg.HistoryFile, logger)
	var resolver controller.LocationResolver
	if cfg.LocationEnabled {
		resolver = location.NewIPResolver(cfg.LocationURL, cfg.LocationTimeout, logger)
	}
	ctrl := controller.New(weatherService, historyStore, resolver, controller.Options{
		Unit:            cfg.DefaultUnit,
		MaxCityLength:   cfg.MaxCityLength,
		SuggestionCount: cfg.SuggestionCount,
		Logger:          logger,
	})

	deps := httphandler.Deps{
		Controller: ctrl,
		History:    historyStore,
		APIKey:     weatherService,
		Logger:     logger,
		Health: &httphandler.HealthConfig{
			ErrorWindow:  cfg.HealthErrorWindow,
			ErrorRatePct: cfg.HealthErrorRatePct,
			CachePing:    cachePing,
		},
	}
	if cfg.DatabaseEnabled() {
		db, err := openDatabase(cfg, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		closers = append(closers, db)
		deps.Auth = auth.NewService(db, logger, cfg.BcryptCost)
		deps.Contacts = contacts.NewRepository(db, logger)
		deps.Health.DBPing = db.PingContext
		logger.Info("database enabled; /auth and /contacts mounted")
	}

	observability.RegisterTrafficGauges(cfg.HealthErrorWindow)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	warmCtx, stopWarm := context.WithCancel(context.Background())
	defer stopWarm()
	if cfg.WarmCache && cfg.CacheTTL > 0 {
		startWarming(warmCtx, cfg, weatherService, historyStore, ctrl, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(httphandler.NewHandler(deps), logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.MarkServing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginDrain()
	stopWarm()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	// Actions outlive their requests; let pending history writes land.
	if err := ctrl.Wait(waitCtx); err != nil {
		logger.Warn("weather actions not completed", zap.Error(err))
	}

	if err := observability.FlushTelemetry(shutdownCtx, logger, closers...); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
	logger.Info("shutdown complete")
}

func openDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.DBPingAttempts+1)*cfg.DBPingInterval)
	defer cancel()
	db, err := database.Open(ctx, cfg.DatabaseDSN, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		PingAttempts:    cfg.DBPingAttempts,
		PingInterval:    cfg.DBPingInterval,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// startWarming prefetches the tracked cities plus the search history in the current unit,
// once at startup and then every WarmInterval when one is set.
func startWarming(ctx context.Context, cfg *config.Config, svc *service.WeatherService, hist *history.Store, ctrl *controller.Controller, logger *zap.Logger) {
	warmer := cache.NewCacheWarmer(svc, logger, cfg.WarmConcurrency)
	cities := func() []string {
		out := slices.Clone(cfg.TrackedCities)
		for _, c := range hist.Entries() {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
		return out
	}
	if cfg.WarmInterval > 0 {
		go func() {
			if err := warmer.WarmPeriodic(ctx, cities, ctrl.Unit, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
		return
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := warmer.Warm(initCtx, cities(), ctrl.Unit()); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
}
