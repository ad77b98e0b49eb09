package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjstillabower/weather-desk/internal/apperr"
)

// DefaultMaxCityLength is used when no maximum is configured.
const DefaultMaxCityLength = 100

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")

	ErrCityTooLong = errors.New("city too long")
)

// MessageCityEmpty is shown when a search is submitted without a city.
const MessageCityEmpty = "Please enter a city name"

// ValidateCity trims input and checks it is non-empty and at most maxLen runes. Any other
// text is passed upstream as typed. The returned error is an apperr validation error wrapping
// one of the sentinels above.
func ValidateCity(input string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxCityLength
	}
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", apperr.Wrap(apperr.KindValidation, MessageCityEmpty, ErrCityEmpty)
	}
	if len(r) > maxLen {
		return "", apperr.Wrap(apperr.KindValidation,
			fmt.Sprintf("City name must be at most %d characters", maxLen), ErrCityTooLong)
	}
	return s, nil
}
