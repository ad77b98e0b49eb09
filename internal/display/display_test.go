package display

import (
	"fmt"
	"testing"

	"github.com/kjstillabower/weather-desk/internal/models"
)

func TestClassifyCondition(t *testing.T) {
	tests := []struct {
		code int
		want ColorTag
	}{
		{200, ColorStorm},
		{232, ColorStorm},
		{299, ColorStorm},
		{300, ColorRain},
		{500, ColorRain},
		{599, ColorRain},
		{600, ColorSnow},
		{650, ColorSnow},
		{700, ColorAtmosphere},
		{750, ColorAtmosphere},
		{800, ColorClear},
		{801, ColorClouds},
		{804, ColorClouds},
		{0, ColorDefault},
		{-1, ColorDefault},
		{199, ColorDefault},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := ClassifyCondition(tt.code); got != tt.want {
				t.Errorf("ClassifyCondition(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyAlert(t *testing.T) {
	tests := []struct {
		temp float64
		want AlertKind
	}{
		{40, AlertHeat},
		{35.1, AlertHeat},
		{35, AlertNone},
		{0, AlertNone},
		{-0.1, AlertFreeze},
		{-5, AlertFreeze},
		{20, AlertNone},
	}
	for _, tt := range tests {
		if got := ClassifyAlert(tt.temp); got != tt.want {
			t.Errorf("ClassifyAlert(%v) = %q, want %q", tt.temp, got, tt.want)
		}
	}
}

func TestFormatTemperature(t *testing.T) {
	if got := FormatTemperature(21.456, models.UnitMetric); got != "21.5°C" {
		t.Errorf("metric = %q", got)
	}
	if got := FormatTemperature(70, models.UnitImperial); got != "70.0°F" {
		t.Errorf("imperial = %q", got)
	}
}

func sample(text string, temp float64) models.ForecastSample {
	return models.ForecastSample{
		TimeText:    text,
		Temperature: temp,
		TempMin:     temp - 2,
		TempMax:     temp + 2,
		Description: "light rain",
		Icon:        "10d",
	}
}

func threeHourDay(date string, base float64) []models.ForecastSample {
	var out []models.ForecastSample
	for i, clock := range []string{"00:00:00", "03:00:00", "06:00:00", "09:00:00", "12:00:00", "15:00:00", "18:00:00", "21:00:00"} {
		out = append(out, sample(date+" "+clock, base+float64(i)))
	}
	return out
}

func TestSelectDailyForecast_OneNoonPerDay(t *testing.T) {
	samples := []models.ForecastSample{
		sample("2024-03-01 06:00:00", 5),
		sample("2024-03-01 09:00:00", 7),
		sample("2024-03-01 12:00:00", 10),
		sample("2024-03-01 15:00:00", 11),
		sample("2024-03-02 06:00:00", 4),
		sample("2024-03-02 09:00:00", 6),
		sample("2024-03-02 12:00:00", 9),
		sample("2024-03-02 15:00:00", 8),
	}
	got := SelectDailyForecast(samples)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Date != "2024-03-01" || got[1].Date != "2024-03-02" {
		t.Errorf("dates = %q, %q", got[0].Date, got[1].Date)
	}
	if got[0].Temperature != 10 || got[1].Temperature != 9 {
		t.Errorf("temps = %v, %v, want noon values", got[0].Temperature, got[1].Temperature)
	}
	if got[0].HighLow != "H: 12° L: 8°" {
		t.Errorf("HighLow = %q", got[0].HighLow)
	}
	if got[0].Description != "Light Rain" {
		t.Errorf("Description = %q", got[0].Description)
	}
	if got[0].IconURL != "https://openweathermap.org/img/wn/10d.png" {
		t.Errorf("IconURL = %q", got[0].IconURL)
	}
}

func TestSelectDailyForecast_DayWithoutNoonIsSkipped(t *testing.T) {
	samples := []models.ForecastSample{
		sample("2024-03-01 12:00:00", 10),
		sample("2024-03-02 09:00:00", 6),
		sample("2024-03-02 15:00:00", 8),
		sample("2024-03-03 12:00:00", 12),
	}
	got := SelectDailyForecast(samples)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, d := range got {
		if d.Date == "2024-03-02" {
			t.Fatalf("day without noon sample present: %+v", d)
		}
	}
}

func TestSelectDailyForecast_CapsAtFive(t *testing.T) {
	var samples []models.ForecastSample
	for day := 1; day <= 7; day++ {
		samples = append(samples, threeHourDay(fmt.Sprintf("2024-03-%02d", day), 0)...)
	}
	got := SelectDailyForecast(samples)
	if len(got) != MaxForecastDays {
		t.Fatalf("len = %d, want %d", len(got), MaxForecastDays)
	}
	if got[4].Date != "2024-03-05" {
		t.Errorf("last date = %q, want 2024-03-05", got[4].Date)
	}
}

func TestSelectDailyForecast_MalformedTimeText(t *testing.T) {
	samples := []models.ForecastSample{
		sample("", 1),
		sample("2024-03-01", 2),
		sample("garbage", 3),
	}
	if got := SelectDailyForecast(samples); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestSummarize(t *testing.T) {
	rec := models.WeatherRecord{
		Location:      "London",
		Country:       "GB",
		Temperature:   40,
		FeelsLike:     42.24,
		Humidity:      30,
		WindSpeed:     3.6,
		ConditionCode: 800,
		Icon:          "01d",
		Description:   "clear sky",
	}
	got := Summarize(rec, models.UnitMetric)
	want := CurrentSummary{
		Title:        "London, GB",
		Description:  "Clear Sky",
		Temperature:  "40.0°C",
		FeelsLike:    "Feels like 42.2°C",
		Humidity:     "30%",
		WindSpeed:    "3.6 m/s",
		IconURL:      "https://openweathermap.org/img/wn/01d@2x.png",
		Color:        ColorClear,
		Alert:        AlertHeat,
		AlertMessage: "High temperature alert!",
	}
	if got != want {
		t.Fatalf("Summarize() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestSummarize_UnknownLocation(t *testing.T) {
	got := Summarize(models.WeatherRecord{Temperature: -5}, models.UnitImperial)
	if got.Title != "Unknown" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Alert != AlertFreeze {
		t.Errorf("Alert = %q, want freeze", got.Alert)
	}
	if got.WindSpeed != "0 mph" {
		t.Errorf("WindSpeed = %q", got.WindSpeed)
	}
}
