package models

// RoadKey classifies the likely road surface.
type RoadKey string

const (
	RoadDry RoadKey = "dry"
	RoadWet RoadKey = "wet"
	RoadIcy RoadKey = "icy"
)

type RoadCondition struct {
	Key           RoadKey `json:"key"`
	SeverityClass string  `json:"severityClass"`
}

// UVCategory is the WHO exposure category for a UV index.
type UVCategory string

const (
	UVLow      UVCategory = "low"
	UVModerate UVCategory = "moderate"
	UVHigh     UVCategory = "high"
	UVVeryHigh UVCategory = "very-high"
	UVExtreme  UVCategory = "extreme"
)

// FormattedTimes holds wall-clock strings in the viewer's time zone.
type FormattedTimes struct {
	Sunrise  string `json:"sunrise"`
	Sunset   string `json:"sunset"`
	Moonrise string `json:"moonrise"`
	Moonset  string `json:"moonset"`
}

type AirQuality struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
}

// Nowcast summarises the minutely precipitation series.
type Nowcast struct {
	PrecipitationExpected bool `json:"precipitationExpected"`
	StartsInMinutes       int  `json:"startsInMinutes"`
}

// ViewModel is the render-ready derivation of one snapshot. It is rebuilt from
// scratch on every accepted fetch.
type ViewModel struct {
	Snapshot          WeatherSnapshot `json:"snapshot"`
	GeneratedOverview string          `json:"generatedOverview"`
	RoadCondition     RoadCondition   `json:"roadCondition"`
	UVCategory        UVCategory      `json:"uvCategory"`
	UVIndex           int             `json:"uvIndex"`
	FormattedTimes    FormattedTimes  `json:"formattedTimes"`
	AirQuality        AirQuality      `json:"airQuality"`
	Nowcast           Nowcast         `json:"nowcast"`
}

// LocalizedAlert is an Alert with its display label and formatted validity window.
type LocalizedAlert struct {
	Alert
	Label     string `json:"label"`
	StartText string `json:"startText"`
	EndText   string `json:"endText"`
}
