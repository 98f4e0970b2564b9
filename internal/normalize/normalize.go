// Package normalize derives the render-ready view-model from a raw provider
// snapshot. Everything here is pure: no I/O, no clocks, no shared state.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FoerchByte/foerch-weather-station-sub000/internal/models"
)

// ErrMalformedSnapshot is returned when a snapshot lacks fields the view-model
// requires. No partial view-model accompanies it.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// IcyThreshold is the temperature (°C) at or below which roads count as icy.
const IcyThreshold = 2.0

const (
	layout24  = "15:04"
	layout12  = "3:04 PM"
	noTimeSet = "--:--"
)

// Options controls viewer-dependent formatting.
type Options struct {
	// Location is the viewer's time zone; nil means UTC.
	Location *time.Location
	Clock24  bool
}

// Normalize builds a ViewModel from snap. The snapshot is copied, not referenced
// for mutation.
func Normalize(snap models.WeatherSnapshot, opts Options) (models.ViewModel, error) {
	if err := check(snap); err != nil {
		return models.ViewModel{}, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	day0 := snap.Daily[0]
	cur := snap.Current

	category := ""
	if len(cur.Weather) > 0 {
		category = cur.Weather[0].Main
	}

	return models.ViewModel{
		Snapshot:          snap,
		GeneratedOverview: day0.Weather[0].Description,
		RoadCondition:     Road(cur.Temp, category),
		UVCategory:        UV(cur.UVI),
		UVIndex:           int(math.Round(cur.UVI)),
		FormattedTimes: models.FormattedTimes{
			Sunrise:  FormatClock(cur.Sunrise, loc, opts.Clock24),
			Sunset:   FormatClock(cur.Sunset, loc, opts.Clock24),
			Moonrise: FormatClock(day0.Moonrise, loc, opts.Clock24),
			Moonset:  FormatClock(day0.Moonset, loc, opts.Clock24),
		},
		AirQuality: AirQuality(snap.AirQuality),
		Nowcast:    Nowcast(snap.Minutely),
	}, nil
}

func check(snap models.WeatherSnapshot) error {
	switch {
	case snap.Current == nil:
		return fmt.Errorf("%w: missing current conditions", ErrMalformedSnapshot)
	case len(snap.Daily) == 0:
		return fmt.Errorf("%w: empty daily series", ErrMalformedSnapshot)
	case len(snap.Hourly) == 0:
		return fmt.Errorf("%w: empty hourly series", ErrMalformedSnapshot)
	case len(snap.Daily[0].Weather) == 0:
		return fmt.Errorf("%w: daily[0] has no weather condition", ErrMalformedSnapshot)
	case math.IsNaN(snap.Current.Temp) || math.IsNaN(snap.Current.UVI):
		return fmt.Errorf("%w: current temperature or uvi is not a number", ErrMalformedSnapshot)
	}
	return nil
}

// Road classifies the road surface from temperature (°C) and the provider's
// primary condition category ("Rain", "Snow", "Drizzle", ...). Icy wins at and
// below IcyThreshold even when precipitating.
func Road(temp float64, category string) models.RoadCondition {
	switch {
	case temp <= IcyThreshold:
		return models.RoadCondition{Key: models.RoadIcy, SeverityClass: "road-danger"}
	case isPrecipitation(category):
		return models.RoadCondition{Key: models.RoadWet, SeverityClass: "road-caution"}
	default:
		return models.RoadCondition{Key: models.RoadDry, SeverityClass: "road-ok"}
	}
}

func isPrecipitation(category string) bool {
	switch category {
	case "Rain", "Snow", "Drizzle":
		return true
	}
	return false
}

// UV maps a UV index to its category. Lower bounds are inclusive and checked
// from the top.
func UV(uvi float64) models.UVCategory {
	switch {
	case uvi >= 11:
		return models.UVExtreme
	case uvi >= 8:
		return models.UVVeryHigh
	case uvi >= 6:
		return models.UVHigh
	case uvi >= 3:
		return models.UVModerate
	default:
		return models.UVLow
	}
}

// AirQuality labels the provider's 1-5 air quality index.
func AirQuality(index int) models.AirQuality {
	keys := [...]string{"good", "fair", "moderate", "poor", "very-poor"}
	if index < 1 || index > len(keys) {
		return models.AirQuality{Index: index, Key: "unknown"}
	}
	return models.AirQuality{Index: index, Key: keys[index-1]}
}

// Nowcast reports whether any precipitation is forecast within the minutely
// series and how many minutes from the first entry it starts.
func Nowcast(series []models.Minutely) models.Nowcast {
	for i, m := range series {
		if m.Precipitation > 0 {
			starts := i
			if series[0].Dt > 0 && m.Dt > 0 {
				starts = int((m.Dt - series[0].Dt) / 60)
			}
			return models.Nowcast{PrecipitationExpected: true, StartsInMinutes: starts}
		}
	}
	return models.Nowcast{}
}

// FormatClock renders epoch seconds as wall-clock time in loc. Zero means the
// event does not happen (polar day, no moonrise) and renders as "--:--".
func FormatClock(sec int64, loc *time.Location, clock24 bool) string {
	if sec == 0 {
		return noTimeSet
	}
	layout := layout12
	if clock24 {
		layout = layout24
	}
	return time.Unix(sec, 0).In(loc).Format(layout)
}
