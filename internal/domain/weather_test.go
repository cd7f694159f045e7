package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyWeather(t *testing.T) {
	tests := []struct {
		name string
		in   WeatherConditions
		want string
	}{
		{"rain beats snow", WeatherConditions{Precipitation: 1.2, SnowDepth: 3}, "Rainy"},
		{"snow beats sun", WeatherConditions{SnowDepth: 2, SunshineDuration: 8}, "Snowy"},
		{"sunny above three hours", WeatherConditions{SunshineDuration: 3.5}, "Sunny"},
		{"three hours is not sunny", WeatherConditions{SunshineDuration: 3}, "Cloudy"},
		{"nothing observed", WeatherConditions{}, "Cloudy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyWeather(tt.in))
		})
	}
}

func TestBracketForAge(t *testing.T) {
	tests := map[string]string{
		"0":   "0-10",
		"10":  "0-10",
		"11":  "11-20",
		"45":  "41-50",
		"70":  "61-70",
		"71":  "70+",
		"103": "70+",
		"":    UnknownAgeBracket,
		"-1":  UnknownAgeBracket,
		"abc": UnknownAgeBracket,
	}
	for age, want := range tests {
		assert.Equal(t, want, BracketForAge(age), "age %q", age)
	}
}

func TestParseWeatherRow(t *testing.T) {
	row, err := ParseWeatherRow(RawRow{
		"DATE": "19790101",
		"TG":   "-4.1",
		"RR":   "0.4",
		"SD":   "9",
		"SS":   "7",
		"HU":   "-9999",
		"CC":   "",
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC), row.Date)
	assert.InDelta(t, -4.1, *row.Temperature, 1e-9)
	assert.InDelta(t, 0.4, *row.Precipitation, 1e-9)
	assert.Nil(t, row.Humidity)
	assert.Nil(t, row.CloudCover)
	assert.Nil(t, row.Pressure)
	assert.Len(t, row.Values(), len(WeatherColumns))

	_, err = ParseWeatherRow(RawRow{"DATE": "1979-01-01"})
	require.Error(t, err)
}
