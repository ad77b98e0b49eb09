package display

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kjstillabower/weather-desk/internal/models"
)

// ColorTag is the display category for a provider condition code.
type ColorTag string

const (
	ColorStorm      ColorTag = "storm"
	ColorRain       ColorTag = "rain"
	ColorSnow       ColorTag = "snow"
	ColorAtmosphere ColorTag = "atmosphere"
	ColorClear      ColorTag = "clear"
	ColorClouds     ColorTag = "clouds"
	ColorDefault    ColorTag = "default"
)

// AlertKind is a temperature alert shown with the current conditions.
type AlertKind string

const (
	AlertNone   AlertKind = ""
	AlertHeat   AlertKind = "heat"
	AlertFreeze AlertKind = "freeze"
)

const (
	heatThreshold   = 35.0
	freezeThreshold = 0.0

	// MaxForecastDays is the number of daily summaries kept from a forecast.
	MaxForecastDays = 5

	noonMarker  = "12:00:00"
	iconBaseURL = "https://openweathermap.org/img/wn/"
)

// CurrentSummary is the human-readable form of a WeatherRecord.
type CurrentSummary struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Temperature  string    `json:"temperature"`
	FeelsLike    string    `json:"feelsLike"`
	Humidity     string    `json:"humidity"`
	WindSpeed    string    `json:"windSpeed"`
	IconURL      string    `json:"iconUrl"`
	Color        ColorTag  `json:"color"`
	Alert        AlertKind `json:"alert,omitempty"`
	AlertMessage string    `json:"alertMessage,omitempty"`
}

// DaySummary is one day picked from a forecast.
type DaySummary struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`
	HighLow     string  `json:"highLow"`
	Description string  `json:"description"`
	IconURL     string  `json:"iconUrl"`
}

// titleCase upper-cases the first letter of each word. A Caser is stateful, so one is
// built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// ClassifyCondition maps a provider condition code to a ColorTag.
func ClassifyCondition(code int) ColorTag {
	switch {
	case code >= 200 && code < 300:
		return ColorStorm
	case code >= 300 && code < 600:
		return ColorRain
	case code >= 600 && code < 700:
		return ColorSnow
	case code >= 700 && code < 800:
		return ColorAtmosphere
	case code == 800:
		return ColorClear
	case code > 800:
		return ColorClouds
	default:
		return ColorDefault
	}
}

// ClassifyAlert returns heat above 35 and freeze below 0. temp is in whatever unit it
// is displayed in, so the thresholds shift meaning under imperial.
func ClassifyAlert(temp float64) AlertKind {
	switch {
	case temp > heatThreshold:
		return AlertHeat
	case temp < freezeThreshold:
		return AlertFreeze
	default:
		return AlertNone
	}
}

// AlertMessage returns the banner text for kind.
func AlertMessage(kind AlertKind) string {
	switch kind {
	case AlertHeat:
		return "High temperature alert!"
	case AlertFreeze:
		return "Freezing temperature alert!"
	default:
		return ""
	}
}

// FormatTemperature renders v with one decimal place and the unit's degree suffix.
func FormatTemperature(v float64, unit models.Unit) string {
	return fmt.Sprintf("%.1f%s", v, unit.TemperatureSymbol())
}

// FormatHighLow renders a forecast day's range.
func FormatHighLow(tempMin, tempMax float64) string {
	return fmt.Sprintf("H: %.0f° L: %.0f°", tempMax, tempMin)
}

// IconURL returns the provider icon image for code. large selects the @2x variant.
func IconURL(code string, large bool) string {
	if code == "" {
		code = "01d"
	}
	if large {
		return iconBaseURL + code + "@2x.png"
	}
	return iconBaseURL + code + ".png"
}

// Summarize builds the display form of a current-conditions record.
func Summarize(rec models.WeatherRecord, unit models.Unit) CurrentSummary {
	title := rec.Location
	if title == "" {
		title = "Unknown"
	}
	if rec.Country != "" {
		title += ", " + rec.Country
	}
	alert := ClassifyAlert(rec.Temperature)
	return CurrentSummary{
		Title:        title,
		Description:  titleCase(rec.Description),
		Temperature:  FormatTemperature(rec.Temperature, unit),
		FeelsLike:    "Feels like " + FormatTemperature(rec.FeelsLike, unit),
		Humidity:     fmt.Sprintf("%d%%", rec.Humidity),
		WindSpeed:    fmt.Sprintf("%g %s", rec.WindSpeed, unit.SpeedLabel()),
		IconURL:      IconURL(rec.Icon, true),
		Color:        ClassifyCondition(rec.ConditionCode),
		Alert:        alert,
		AlertMessage: AlertMessage(alert),
	}
}

// SelectDailyForecast keeps the first noon sample of each calendar date, in input order,
// up to MaxForecastDays. A date without a noon sample is left out.
func SelectDailyForecast(samples []models.ForecastSample) []DaySummary {
	days := make([]DaySummary, 0, MaxForecastDays)
	seen := make(map[string]struct{}, MaxForecastDays)
	for _, s := range samples {
		date, clock := splitTimeText(s.TimeText)
		if _, ok := seen[date]; ok || !strings.Contains(clock, noonMarker) {
			continue
		}
		seen[date] = struct{}{}
		days = append(days, DaySummary{
			Date:        date,
			Temperature: s.Temperature,
			TempMin:     s.TempMin,
			TempMax:     s.TempMax,
			HighLow:     FormatHighLow(s.TempMin, s.TempMax),
			Description: titleCase(s.Description),
			IconURL:     IconURL(s.Icon, false),
		})
		if len(days) >= MaxForecastDays {
			break
		}
	}
	return days
}

func splitTimeText(s string) (date, clock string) {
	fields := strings.Fields(s)
	if len(fields) > 0 {
		date = fields[0]
	}
	if len(fields) > 1 {
		clock = fields[1]
	}
	return date, clock
}
