package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kjstillabower/weather-desk/internal/circuitbreaker"
	"github.com/kjstillabower/weather-desk/internal/models"
	"github.com/kjstillabower/weather-desk/internal/observability"
)

// WeatherClient fetches current conditions and the 5-day/3-hour forecast for a city.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error)
	GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

const (
	endpointWeather  = "weather"
	endpointForecast = "forecast"
)

// OpenWeatherClient calls the OpenWeatherMap 2.5 API. Each call is attempted once.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client for baseURL (e.g. https://api.openweathermap.org/data/2.5).
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream call with cb. Not-found responses do not count
// against it; configure that through circuitbreaker.Config.IsFailure with IsBreakerFailure.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// IsBreakerFailure reports whether err says the upstream is unhealthy, as opposed to the
// request being wrong.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, context.Canceled)
}

type currentResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []weatherCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type weatherCondition struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type forecastResponse struct {
	List []struct {
		Dt    int64  `json:"dt"`
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []weatherCondition `json:"weather"`
	} `json:"list"`
}

// GetCurrentWeather fetches current conditions for city in unit.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string, unit models.Unit) (models.WeatherRecord, error) {
	var resp currentResponse
	if err := c.call(ctx, endpointWeather, city, unit, &resp); err != nil {
		return models.WeatherRecord{}, err
	}
	return mapCurrent(resp, city, unit), nil
}

// GetForecast fetches the 3-hourly forecast samples for city in unit.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, city string, unit models.Unit) ([]models.ForecastSample, error) {
	var resp forecastResponse
	if err := c.call(ctx, endpointForecast, city, unit, &resp); err != nil {
		return nil, err
	}
	return mapForecast(resp), nil
}

func (c *OpenWeatherClient) call(ctx context.Context, endpoint, city string, unit models.Unit, out any) error {
	do := func() error { return c.callAPI(ctx, endpoint, city, unit, out) }
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, do)
	} else {
		err = do()
	}
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
	return err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, city string, unit models.Unit, out any) error {
	start := time.Now()

	req, err := c.buildRequest(ctx, endpoint, city, unit)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint, city string, unit models.Unit) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if !unit.Valid() {
		unit = models.UnitMetric
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", string(unit))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func mapCurrent(r currentResponse, city string, unit models.Unit) models.WeatherRecord {
	cond := weatherCondition{ID: 800, Icon: "01d"}
	if len(r.Weather) > 0 {
		cond = r.Weather[0]
	}
	name := r.Name
	if name == "" {
		name = strings.TrimSpace(city)
	}
	return models.WeatherRecord{
		Location:      name,
		Country:       r.Sys.Country,
		Temperature:   r.Main.Temp,
		FeelsLike:     r.Main.FeelsLike,
		Humidity:      r.Main.Humidity,
		WindSpeed:     r.Wind.Speed,
		ConditionCode: cond.ID,
		Icon:          cond.Icon,
		Description:   cond.Description,
		Unit:          unit,
	}
}

func mapForecast(r forecastResponse) []models.ForecastSample {
	samples := make([]models.ForecastSample, 0, len(r.List))
	for _, item := range r.List {
		s := models.ForecastSample{
			Timestamp:   item.Dt,
			TimeText:    item.DtTxt,
			Temperature: item.Main.Temp,
			TempMin:     item.Main.TempMin,
			TempMax:     item.Main.TempMax,
			Icon:        "01d",
		}
		if len(item.Weather) > 0 {
			s.Description = item.Weather[0].Description
			if item.Weather[0].Icon != "" {
				s.Icon = item.Weather[0].Icon
			}
		}
		samples = append(samples, s)
	}
	return samples
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey makes a cheap current-conditions call and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, endpointWeather, "London", models.UnitMetric)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
