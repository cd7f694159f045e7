package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WeatherRow is one day of London weather observations.
type WeatherRow struct {
	Date             time.Time
	Temperature      *float64
	Humidity         *float64
	Precipitation    *float64
	Pressure         *float64
	CloudCover       *float64
	Radiation        *float64
	SnowDepth        *float64
	SunshineDuration *float64
	MaxTemp          *float64
	MinTemp          *float64
}

// WeatherColumns is the column order of the weather table.
var WeatherColumns = []string{
	"date", "temperature", "humidity", "precipitation", "pressure", "cloud_cover",
	"radiation", "snow_depth", "sunshine_duration", "max_temp", "min_temp",
}

// weatherSourceColumns maps the export's short codes to WeatherColumns names.
var weatherSourceColumns = map[string]string{
	"TG": "temperature",
	"HU": "humidity",
	"RR": "precipitation",
	"PP": "pressure",
	"CC": "cloud_cover",
	"QQ": "radiation",
	"SD": "snow_depth",
	"SS": "sunshine_duration",
	"TX": "max_temp",
	"TN": "min_temp",
}

// missingObservation is the export's sentinel for an absent measurement.
const missingObservation = -9999

// Values returns the row in WeatherColumns order, with nil for NULL.
func (w WeatherRow) Values() []any {
	return []any{
		w.Date,
		floatOrNil(w.Temperature),
		floatOrNil(w.Humidity),
		floatOrNil(w.Precipitation),
		floatOrNil(w.Pressure),
		floatOrNil(w.CloudCover),
		floatOrNil(w.Radiation),
		floatOrNil(w.SnowDepth),
		floatOrNil(w.SunshineDuration),
		floatOrNil(w.MaxTemp),
		floatOrNil(w.MinTemp),
	}
}

// ParseWeatherRow converts one export row. DATE is required and formatted YYYYMMDD;
// measurements that are empty, unparseable or the missing sentinel become NULL.
func ParseWeatherRow(raw RawRow) (WeatherRow, error) {
	date, err := time.Parse("20060102", strings.TrimSpace(raw["DATE"]))
	if err != nil {
		return WeatherRow{}, fmt.Errorf("parse weather date %q: %w", raw["DATE"], err)
	}

	values := make(map[string]*float64, len(weatherSourceColumns))
	for code, column := range weatherSourceColumns {
		values[column] = parseObservation(raw[code])
	}

	return WeatherRow{
		Date:             date,
		Temperature:      values["temperature"],
		Humidity:         values["humidity"],
		Precipitation:    values["precipitation"],
		Pressure:         values["pressure"],
		CloudCover:       values["cloud_cover"],
		Radiation:        values["radiation"],
		SnowDepth:        values["snow_depth"],
		SunshineDuration: values["sunshine_duration"],
		MaxTemp:          values["max_temp"],
		MinTemp:          values["min_temp"],
	}, nil
}

func parseObservation(s string) *float64 {
	v := parseOptionalFloat(s)
	if v != nil && *v == missingObservation {
		return nil
	}
	return v
}

// WeatherConditions are the observations that decide a weather category.
type WeatherConditions struct {
	Precipitation    float64
	SnowDepth        float64
	SunshineDuration float64
}

// WeatherRule assigns Category when Column exceeds Threshold.
type WeatherRule struct {
	Category  string
	Column    string
	Threshold float64
	value     func(WeatherConditions) float64
}

// WeatherRules are evaluated in order; the first match wins.
var WeatherRules = []WeatherRule{
	{Category: "Rainy", Column: "precipitation", Threshold: 0, value: func(c WeatherConditions) float64 { return c.Precipitation }},
	{Category: "Snowy", Column: "snow_depth", Threshold: 0, value: func(c WeatherConditions) float64 { return c.SnowDepth }},
	{Category: "Sunny", Column: "sunshine_duration", Threshold: 3, value: func(c WeatherConditions) float64 { return c.SunshineDuration }},
}

// DefaultWeatherCategory applies when no rule matches.
const DefaultWeatherCategory = "Cloudy"

// UnknownWeatherCategory labels accidents on days with no weather observation.
const UnknownWeatherCategory = "Unknown"

// ClassifyWeather returns the mutually exclusive weather category for a day.
func ClassifyWeather(c WeatherConditions) string {
	for _, rule := range WeatherRules {
		if rule.value(c) > rule.Threshold {
			return rule.Category
		}
	}
	return DefaultWeatherCategory
}

// AgeBracket is an inclusive age range. Max < 0 means open-ended.
type AgeBracket struct {
	Label string
	Min   int
	Max   int
}

// AgeBrackets are 10-year buckets with an open bucket above 70.
var AgeBrackets = []AgeBracket{
	{Label: "0-10", Min: 0, Max: 10},
	{Label: "11-20", Min: 11, Max: 20},
	{Label: "21-30", Min: 21, Max: 30},
	{Label: "31-40", Min: 31, Max: 40},
	{Label: "41-50", Min: 41, Max: 50},
	{Label: "51-60", Min: 51, Max: 60},
	{Label: "61-70", Min: 61, Max: 70},
	{Label: "70+", Min: 71, Max: -1},
}

// UnknownAgeBracket labels casualties without a usable age.
const UnknownAgeBracket = "Unknown"

// BracketForAge maps a textual casualty age to its bracket label.
func BracketForAge(age string) string {
	n, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil || n < 0 {
		return UnknownAgeBracket
	}
	for _, b := range AgeBrackets {
		if n >= b.Min && (b.Max < 0 || n <= b.Max) {
			return b.Label
		}
	}
	return UnknownAgeBracket
}
