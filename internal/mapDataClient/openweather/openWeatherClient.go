package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

const (
	defaultBaseURL         = "https://api.openweathermap.org"
	currentWeatherEndPoint = "/data/2.5/weather"
	sourceName             = "openweathermap"
)

type OpenWeatherClient struct {
	webClient http.Client
	baseURL   string
	apiKey    string
	units     string
}

type Option func(*OpenWeatherClient)

func WithBaseURL(baseURL string) Option {
	return func(c *OpenWeatherClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *OpenWeatherClient) {
		if timeout > 0 {
			c.webClient.Timeout = timeout
		}
	}
}

func WithUnits(units string) Option {
	return func(c *OpenWeatherClient) {
		if units != "" {
			c.units = units
		}
	}
}

func NewOpenWeatherClient(apiKey string, opts ...Option) *OpenWeatherClient {
	c := &OpenWeatherClient{
		webClient: http.Client{
			Timeout: time.Second * 10,
		},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		units:   "imperial",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentWeatherResponse struct {
	Name string `json:"name"`
	Main *struct {
		Temp      *float64 `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Pressure  int      `json:"pressure"`
		Humidity  int      `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// errorResponse is the body OpenWeatherMap sends with non-2xx statuses.
// cod is a number or a string depending on the endpoint.
type errorResponse struct {
	Cod     any    `json:"cod"`
	Message string `json:"message"`
}

func (r currentWeatherResponse) castToSnapshot() (*model.WeatherSnapshot, error) {
	if r.Main == nil || r.Main.Temp == nil {
		return nil, mapDataClient.Malformed(sourceName, "main.temp missing")
	}
	if len(r.Weather) == 0 || r.Weather[0].Description == "" {
		return nil, mapDataClient.Malformed(sourceName, "weather[0].description missing")
	}
	return &model.WeatherSnapshot{
		Temperature:          *r.Main.Temp,
		ConditionDescription: r.Weather[0].Description,
		FeelsLike:            r.Main.FeelsLike,
		Humidity:             r.Main.Humidity,
		Pressure:             r.Main.Pressure,
		WindSpeed:            r.Wind.Speed,
		Icon:                 r.Weather[0].Icon,
		LocationName:         r.Name,
	}, nil
}

//GetCurrentWeather receives current weather at the coordinate from the OpenWeatherMap api.
func (c OpenWeatherClient) GetCurrentWeather(ctx context.Context, coordinate model.Coordinate) (*model.WeatherSnapshot, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", sourceName, mapDataClient.ErrMissingAPIKey)
	}
	logger.DebugF("getting current weather at point (%f, %f)", coordinate.Lat, coordinate.Lng)

	u, err := url.Parse(c.baseURL + currentWeatherEndPoint)
	if err != nil {
		return nil, fmt.Errorf("%s: bad base url: %w", sourceName, err)
	}
	q := u.Query()
	q.Add("lat", strconv.FormatFloat(coordinate.Lat, 'f', 10, 64))
	q.Add("lon", strconv.FormatFloat(coordinate.Lng, 'f', 10, 64))
	q.Add("appid", c.apiKey)
	q.Add("units", c.units)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	response, err := c.webClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sourceName, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, readAPIError(response)
	}

	resp := currentWeatherResponse{}
	if err = json.NewDecoder(response.Body).Decode(&resp); err != nil {
		return nil, mapDataClient.Malformed(sourceName, err)
	}
	return resp.castToSnapshot()
}

func readAPIError(response *http.Response) error {
	apiErr := &mapDataClient.APIError{Source: sourceName, StatusCode: response.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4<<10))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		apiErr.Message = er.Message
	}
	return apiErr
}
