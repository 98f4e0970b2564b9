package models

// WeatherSnapshot is one full provider payload for a single location, shaped like
// the OpenWeather One Call 3.0 response plus the air-quality index and the
// resolved location, which the fetch collaborator attaches.
type WeatherSnapshot struct {
	Lat            float64       `json:"lat"`
	Lon            float64       `json:"lon"`
	Timezone       string        `json:"timezone"`
	TimezoneOffset int           `json:"timezone_offset"`
	Current        *Current      `json:"current,omitempty"`
	Minutely       []Minutely    `json:"minutely,omitempty"`
	Hourly         []HourlyEntry `json:"hourly"`
	Daily          []Daily       `json:"daily"`
	Alerts         []Alert       `json:"alerts,omitempty"`

	// AirQuality is the 1-5 index from the air pollution endpoint; 0 when unknown.
	AirQuality int      `json:"air_quality"`
	Location   Location `json:"location"`
}

// Condition is one entry of a provider "weather" array.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Current struct {
	Dt         int64       `json:"dt"`
	Sunrise    int64       `json:"sunrise"`
	Sunset     int64       `json:"sunset"`
	Temp       float64     `json:"temp"`
	FeelsLike  float64     `json:"feels_like"`
	Pressure   int         `json:"pressure"`
	Humidity   int         `json:"humidity"`
	UVI        float64     `json:"uvi"`
	Clouds     int         `json:"clouds"`
	Visibility int         `json:"visibility"`
	WindSpeed  float64     `json:"wind_speed"`
	WindDeg    int         `json:"wind_deg"`
	Weather    []Condition `json:"weather"`
}

// Minutely is one minute of the precipitation nowcast (mm/h).
type Minutely struct {
	Dt            int64   `json:"dt"`
	Precipitation float64 `json:"precipitation"`
}

type HourlyEntry struct {
	Dt        int64       `json:"dt"`
	Temp      float64     `json:"temp"`
	FeelsLike float64     `json:"feels_like"`
	Pop       float64     `json:"pop"`
	UVI       float64     `json:"uvi"`
	WindSpeed float64     `json:"wind_speed"`
	Weather   []Condition `json:"weather"`
}

type DailyTemp struct {
	Day   float64 `json:"day"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Night float64 `json:"night"`
}

type Daily struct {
	Dt        int64       `json:"dt"`
	Sunrise   int64       `json:"sunrise"`
	Sunset    int64       `json:"sunset"`
	Moonrise  int64       `json:"moonrise"`
	Moonset   int64       `json:"moonset"`
	MoonPhase float64     `json:"moon_phase"`
	Summary   string      `json:"summary,omitempty"`
	Temp      DailyTemp   `json:"temp"`
	Pop       float64     `json:"pop"`
	UVI       float64     `json:"uvi"`
	Weather   []Condition `json:"weather"`
}

// Alert is a provider-issued warning. Start and End are epoch seconds.
type Alert struct {
	Event       string   `json:"event"`
	SenderName  string   `json:"sender_name"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
