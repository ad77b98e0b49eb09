// Package config loads weather-desk settings from config/{ENV_NAME}.yaml, config/secrets.yaml,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-desk/internal/models"
)

// Config holds the resolved settings.
type Config struct {
	ServerPort string `validate:"required,numeric"`
	LogLevel   string `validate:"omitempty,oneof=debug info warn error"`

	WeatherAPIKey     string        `validate:"required,min=10"`
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`
	RequestTimeout    time.Duration `validate:"gt=0"`

	DefaultUnit     models.Unit `validate:"oneof=metric imperial"`
	MaxCityLength   int         `validate:"gte=1,lte=200"`
	SuggestionCount int         `validate:"gte=1,lte=10"`
	HistoryFile     string      `validate:"required"`

	LocationEnabled bool
	LocationURL     string        `validate:"omitempty,url"`
	LocationTimeout time.Duration `validate:"gt=0"`

	CacheBackend          string        `validate:"oneof=in_memory memcached"`
	CacheTTL              time.Duration `validate:"gte=0"`
	CacheSizeBytes        int           `validate:"gte=0"`
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	WarmCache             bool
	WarmInterval          time.Duration `validate:"gte=0"`
	WarmConcurrency       int           `validate:"gte=0"`

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int `validate:"gte=1"`
	CircuitBreakerSuccessThreshold int `validate:"gte=1"`
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int `validate:"gte=0"`
	RateLimitBurst int `validate:"gte=0"`

	HealthErrorWindow  time.Duration
	HealthErrorRatePct int `validate:"gte=0,lte=100"`

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DatabaseDSN       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPingAttempts    int
	DBPingInterval    time.Duration
	BcryptCost        int `validate:"omitempty,gte=4,lte=31"`

	TrackedCities []string
}

// DatabaseEnabled reports whether login and the contact book should be served.
func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseDSN != ""
}

type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Search struct {
		DefaultUnit     string `yaml:"default_unit"`
		MaxCityLength   int    `yaml:"max_city_length"`
		SuggestionCount int    `yaml:"suggestion_count"`
		HistoryFile     string `yaml:"history_file"`
	} `yaml:"search"`

	Location struct {
		Enabled *bool  `yaml:"enabled"`
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"location"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		SizeBytes int    `yaml:"size_bytes"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Enabled     bool   `yaml:"enabled"`
			Interval    string `yaml:"interval"`
			Concurrency int    `yaml:"concurrency"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Health struct {
		ErrorWindow  string `yaml:"error_window"`
		ErrorRatePct int    `yaml:"error_rate_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Database struct {
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		PingAttempts    int    `yaml:"ping_attempts"`
		PingInterval    string `yaml:"ping_interval"`
		BcryptCost      int    `yaml:"bcrypt_cost"`
	} `yaml:"database"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	DatabaseDSN   string `yaml:"database_dsn"`
}

// envOverlay lists the variables that override the YAML files.
type envOverlay struct {
	WeatherAPIKey  string `envconfig:"WEATHER_API_KEY"`
	CacheBackend   string `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs string `envconfig:"MEMCACHED_ADDRS"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN"`
	HistoryFile    string `envconfig:"HISTORY_FILE"`
	ServerPort     string `envconfig:"SERVER_PORT"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
}

// Load reads configuration relative to the working directory. A .env file there is
// loaded first and never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return loadFrom(filepath.Join(cwd, "config"), env)
}

func loadFrom(dir, env string) (*Config, error) {
	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	var ov envOverlay
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := fromFile(&fc)
	cfg.WeatherAPIKey = firstNonEmpty(ov.WeatherAPIKey, sec.WeatherAPIKey)
	cfg.DatabaseDSN = firstNonEmpty(ov.DatabaseDSN, sec.DatabaseDSN, fc.Database.DSN)
	cfg.ServerPort = firstNonEmpty(ov.ServerPort, cfg.ServerPort)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(ov.LogLevel, cfg.LogLevel))
	cfg.HistoryFile = firstNonEmpty(ov.HistoryFile, cfg.HistoryFile)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(strings.TrimSpace(ov.CacheBackend), cfg.CacheBackend))
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(ov.MemcachedAddrs), cfg.MemcachedAddrs)

	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// fromFile applies defaults to everything the YAML leaves unset.
func fromFile(fc *fileConfig) *Config {
	cfg := &Config{
		ServerPort: firstNonEmpty(fc.Server.Port, "8080"),
		LogLevel:   fc.Server.LogLevel,

		WeatherAPIURL:     firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.URL), "https://api.openweathermap.org/data/2.5"),
		WeatherAPITimeout: parseDuration(fc.WeatherAPI.Timeout, 10*time.Second),
		RequestTimeout:    parseDuration(fc.Request.Timeout, 15*time.Second),

		DefaultUnit:     models.Unit(strings.ToLower(firstNonEmpty(fc.Search.DefaultUnit, string(models.UnitMetric)))),
		MaxCityLength:   positiveOr(fc.Search.MaxCityLength, 100),
		SuggestionCount: positiveOr(fc.Search.SuggestionCount, 5),
		HistoryFile:     firstNonEmpty(fc.Search.HistoryFile, "search_history.json"),

		LocationEnabled: fc.Location.Enabled == nil || *fc.Location.Enabled,
		LocationURL:     firstNonEmpty(fc.Location.URL, "https://ipapi.co/json/"),
		LocationTimeout: parseDuration(fc.Location.Timeout, 5*time.Second),

		CacheBackend:          strings.ToLower(firstNonEmpty(strings.TrimSpace(fc.Cache.Backend), "in_memory")),
		CacheTTL:              parseDurationOrZero(fc.Cache.TTL, 0),
		CacheSizeBytes:        positiveOr(fc.Cache.SizeBytes, 8*1024*1024),
		MemcachedAddrs:        firstNonEmpty(strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211"),
		MemcachedTimeout:      parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: positiveOr(fc.Cache.Memcached.MaxIdleConns, 2),
		WarmCache:             fc.Cache.Warm.Enabled,
		WarmInterval:          parseDurationOrZero(fc.Cache.Warm.Interval, 0),
		WarmConcurrency:       positiveOr(fc.Cache.Warm.Concurrency, 4),

		CircuitBreakerEnabled:          fc.Reliability.CircuitBreaker.Enabled == nil || *fc.Reliability.CircuitBreaker.Enabled,
		CircuitBreakerFailureThreshold: positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5),
		CircuitBreakerSuccessThreshold: positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2),
		CircuitBreakerTimeout:          parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second),

		RateLimitRPS:   positiveOr(fc.Reliability.RateLimitRPS, 20),
		RateLimitBurst: positiveOr(fc.Reliability.RateLimitBurst, 40),

		HealthErrorWindow:  parseDuration(fc.Health.ErrorWindow, 60*time.Second),
		HealthErrorRatePct: positiveOr(fc.Health.ErrorRatePct, 50),

		ShutdownTimeout:               parseDuration(fc.Shutdown.Timeout, 30*time.Second),
		ShutdownInFlightTimeout:       parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second),
		ShutdownInFlightCheckInterval: parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond),

		DBMaxOpenConns:    positiveOr(fc.Database.MaxOpenConns, 20),
		DBMaxIdleConns:    positiveOr(fc.Database.MaxIdleConns, 10),
		DBConnMaxLifetime: parseDuration(fc.Database.ConnMaxLifetime, 30*time.Minute),
		DBPingAttempts:    positiveOr(fc.Database.PingAttempts, 10),
		DBPingInterval:    parseDuration(fc.Database.PingInterval, 3*time.Second),
		BcryptCost:        fc.Database.BcryptCost,

		TrackedCities: fc.Metrics.TrackedCities,
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses s, falling back to defaultVal when s is empty, invalid or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses s, falling back to defaultVal when s is empty or invalid.
// Zero is kept: a zero cache TTL disables caching.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks struct tags, then the relations between fields. RequestTimeout is raised
// above WeatherAPITimeout so a handler can outwait one upstream call.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q: %w", fe.Namespace(), fe.Tag(), err)
		}
		return fmt.Errorf("config: %w", err)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.CacheBackend == "memcached" && cfg.MemcachedAddrs == "" {
		return fmt.Errorf("cache.memcached.addrs required when cache.backend is memcached")
	}
	if cfg.DBMaxIdleConns > cfg.DBMaxOpenConns {
		cfg.DBMaxIdleConns = cfg.DBMaxOpenConns
	}
	return nil
}
