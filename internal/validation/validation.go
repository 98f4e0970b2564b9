// Package validation checks user input before it reaches the weather service.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
)

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooShort is returned when a place name is below the minimum length.
var ErrQueryTooShort = errors.New("query too short")

// ErrQueryTooLong is returned when a place name exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when a place name contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrCoordinatesOutOfRange is returned when latitude is outside [-90, 90] or
// longitude outside [-180, 180].
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

// ErrInvalidLocation is returned when a location body fails struct validation.
var ErrInvalidLocation = errors.New("invalid location")

var validate = validator.New()

// ValidateQuery trims input, parses it into a Query and checks it.
// Place names are bounded by minLen and maxLen in runes (0 disables a bound)
// and limited to letters, digits, space, comma, hyphen, period and apostrophe.
// Coordinate pairs must be in range.
func ValidateQuery(input string, minLen, maxLen int) (models.Query, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, ErrQueryEmpty
	}
	switch q := models.ParseQuery(s).(type) {
	case models.ByCoordinates:
		if err := ValidateLocation(models.Location{Lat: q.Lat, Lon: q.Lon}); err != nil {
			return nil, ErrCoordinatesOutOfRange
		}
		return q, nil
	case models.ByName:
		name, err := validateName(q.Name, minLen, maxLen)
		if err != nil {
			return nil, err
		}
		return models.ByName{Name: name}, nil
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

// ValidateLocation checks coordinate ranges and name length on a location
// supplied by a client, e.g. a favorites toggle body.
func ValidateLocation(loc models.Location) error {
	if err := validate.Struct(loc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrInvalidLocation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return nil
}

func validateName(s string, minLen, maxLen int) (string, error) {
	r := []rune(s)
	n := len(r)
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
