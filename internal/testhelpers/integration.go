//go:build integration
// +build integration

// Package testhelpers builds real weather-desk stacks for integration tests.
package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-desk/internal/cache"
	"github.com/kjstillabower/weather-desk/internal/client"
	"github.com/kjstillabower/weather-desk/internal/controller"
	"github.com/kjstillabower/weather-desk/internal/history"
	"github.com/kjstillabower/weather-desk/internal/service"
)

// IntegrationConfig holds the environment for integration tests.
type IntegrationConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig reads the integration environment. Skips the test when
// WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	cfg := IntegrationConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openweathermap.org/data/2.5"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// Stack is a wired service, controller and history file backed by live upstreams.
type Stack struct {
	Service    *service.WeatherService
	Controller *controller.Controller
	History    *history.Store
}

// SetupIntegrationStack wires a Stack. The history file lives in a temp dir and the
// memcached connection, when used, is closed on cleanup.
func SetupIntegrationStack(t *testing.T, cfg IntegrationConfig) *Stack {
	t.Helper()
	logger := zaptest.NewLogger(t)

	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	var store cache.Cache = cache.NewInMemoryCache(0)
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err != nil || mc.Ping() != nil {
			t.Logf("memcached not available at %s, using in-memory cache", cfg.MemcachedAddr)
		} else {
			store = mc
			t.Cleanup(func() { _ = mc.Close() })
		}
	}

	svc := service.NewWeatherService(weatherClient, store, 5*time.Minute, logger)
	hist := history.Load(filepath.Join(t.TempDir(), "history.json"), logger)
	ctrl := controller.New(svc, hist, nil, controller.Options{Logger: logger})
	return &Stack{Service: svc, Controller: ctrl, History: hist}
}
