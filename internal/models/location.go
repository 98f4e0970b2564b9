package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coordScale fixes the precision used for coordinate identity: 4 decimal places.
const coordScale = 1e4

// Location is a named place. Its identity is the (Lat, Lon) pair.
type Location struct {
	Name string  `json:"name" validate:"max=200"`
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Key returns the coordinates rounded to 4 decimal places, e.g. "51.7500,19.4500".
func (l Location) Key() string {
	return fmt.Sprintf("%.4f,%.4f", float64(roundCoord(l.Lat))/coordScale, float64(roundCoord(l.Lon))/coordScale)
}

// SameRounded reports whether both locations round to the same coordinates at 4 decimal places.
func (l Location) SameRounded(o Location) bool {
	return roundCoord(l.Lat) == roundCoord(o.Lat) && roundCoord(l.Lon) == roundCoord(o.Lon)
}

func roundCoord(v float64) int64 {
	return int64(math.Round(v * coordScale))
}

// Query is what a user searches for: a place name or a coordinate pair.
// The set of implementations is closed; resolve it with a type switch.
type Query interface {
	fmt.Stringer
	isQuery()
}

// ByName queries by free-text place name.
type ByName struct {
	Name string
}

// ByCoordinates queries by latitude/longitude.
type ByCoordinates struct {
	Lat float64
	Lon float64
}

func (ByName) isQuery()        {}
func (ByCoordinates) isQuery() {}

func (q ByName) String() string { return q.Name }

func (q ByCoordinates) String() string {
	return strconv.FormatFloat(q.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(q.Lon, 'f', -1, 64)
}

// ParseQuery turns "51.75,19.45" into ByCoordinates and anything else into ByName.
func ParseQuery(s string) Query {
	s = strings.TrimSpace(s)
	if lat, lon, ok := parseCoordinates(s); ok {
		return ByCoordinates{Lat: lat, Lon: lon}
	}
	return ByName{Name: s}
}

func parseCoordinates(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
