package mapDataClient

import (
	"context"

	"github.com/japersik/weather-map/model"
)

type WeatherInfoSource interface {
	GetCurrentWeather(ctx context.Context, coordinate model.Coordinate) (*model.WeatherSnapshot, error)
}

// GeocodeSource backs the search box: Suggest feeds the live dropdown,
// Resolve turns the chosen text into a coordinate.
type GeocodeSource interface {
	Suggest(ctx context.Context, text string) ([]model.Suggestion, error)
	Resolve(ctx context.Context, text string) (model.Coordinate, error)
}

type Client struct {
	WeatherInfoSource
	GeocodeSource
}
