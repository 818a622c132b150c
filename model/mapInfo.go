package model

import (
	"math"
	"time"
	_ "time/tzdata"
)

type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

//Valid reports whether the coordinate is a finite (lat, lng) pair inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// WeatherSnapshot is the weather reading captured when a marker is created.
// Temperature is in °F.
type WeatherSnapshot struct {
	Temperature          float64 `json:"temperature"`
	ConditionDescription string  `json:"conditionDescription"`
	FeelsLike            float64 `json:"feelsLike,omitempty"`
	Humidity             int     `json:"humidity,omitempty"`
	Pressure             int     `json:"pressure,omitempty"`
	WindSpeed            float64 `json:"windSpeed,omitempty"`
	Icon                 string  `json:"icon,omitempty"`
	LocationName         string  `json:"locationName,omitempty"`
}

type Marker struct {
	Id         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Coordinate Coordinate      `json:"coordinate"`
	Weather    WeatherSnapshot `json:"weather"`
	TimeZone   string          `json:"timeZone,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

//LocalTime returns t in the marker's time zone, or t unchanged when the zone is unknown.
func (m Marker) LocalTime(t time.Time) time.Time {
	if m.TimeZone == "" {
		return t
	}
	loc, err := time.LoadLocation(m.TimeZone)
	if err != nil {
		return t
	}
	return t.In(loc)
}

// Suggestion is one autocomplete candidate for the search box.
type Suggestion struct {
	PlaceId     string     `json:"placeId"`
	Description string     `json:"description"`
	Coordinate  Coordinate `json:"coordinate"`
}

type ViewCenter struct {
	Coordinate Coordinate `json:"coordinate"`
	Zoom       int        `json:"zoom"`
}
