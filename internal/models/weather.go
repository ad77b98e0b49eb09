package models

import "fmt"

// Unit is the measurement system used for both upstream queries and display.
type Unit string

const (
	UnitMetric   Unit = "metric"
	UnitImperial Unit = "imperial"
)

// Toggle returns the other unit.
func (u Unit) Toggle() Unit {
	if u == UnitImperial {
		return UnitMetric
	}
	return UnitImperial
}

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	return u == UnitMetric || u == UnitImperial
}

// TemperatureSymbol returns the degree suffix for the unit.
func (u Unit) TemperatureSymbol() string {
	if u == UnitImperial {
		return "°F"
	}
	return "°C"
}

// SpeedLabel returns the wind speed label the provider uses for the unit.
func (u Unit) SpeedLabel() string {
	if u == UnitImperial {
		return "mph"
	}
	return "m/s"
}

// ParseUnit parses a unit name, defaulting to metric for empty input.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case "":
		return UnitMetric, nil
	case UnitMetric, UnitImperial:
		return Unit(s), nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// WeatherRecord is a current-conditions reading for one location.
type WeatherRecord struct {
	Location      string  `json:"location"`
	Country       string  `json:"country"`
	Temperature   float64 `json:"temperature"`
	FeelsLike     float64 `json:"feelsLike"`
	Humidity      int     `json:"humidity"`
	WindSpeed     float64 `json:"windSpeed"`
	ConditionCode int     `json:"conditionCode"`
	Icon          string  `json:"icon"`
	Description   string  `json:"description"`
	Unit          Unit    `json:"unit"`
}

// ForecastSample is one fixed-interval forecast entry.
type ForecastSample struct {
	Timestamp   int64   `json:"timestamp"`
	TimeText    string  `json:"timeText"` // provider format "2006-01-02 15:04:05"
	Temperature float64 `json:"temperature"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}
