package openstreetmap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	searchEndPoint   = "/search"
	sourceName       = "nominatim"
	defaultUserAgent = "weather-map/1.0"
)

type OpenStreetClient struct {
	webClient       http.Client
	baseURL         string
	userAgent       string
	language        string
	suggestionLimit int
}

type Option func(*OpenStreetClient)

func WithBaseURL(baseURL string) Option {
	return func(c *OpenStreetClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects requests without one.
func WithUserAgent(userAgent string) Option {
	return func(c *OpenStreetClient) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

func WithLanguage(language string) Option {
	return func(c *OpenStreetClient) {
		c.language = language
	}
}

func WithSuggestionLimit(limit int) Option {
	return func(c *OpenStreetClient) {
		if limit > 0 {
			c.suggestionLimit = limit
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *OpenStreetClient) {
		if timeout > 0 {
			c.webClient.Timeout = timeout
		}
	}
}

func NewOpenStreetClient(opts ...Option) *OpenStreetClient {
	c := &OpenStreetClient{
		webClient: http.Client{
			Timeout: time.Second * 10,
		},
		baseURL:         defaultBaseURL,
		userAgent:       defaultUserAgent,
		language:        "en",
		suggestionLimit: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// place is one jsonv2 search hit. Nominatim sends coordinates as strings.
type place struct {
	PlaceId     int64  `json:"place_id"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p place) castToSuggestion() (model.Suggestion, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return model.Suggestion{}, mapDataClient.Malformed(sourceName, fmt.Sprintf("lat %q", p.Lat))
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return model.Suggestion{}, mapDataClient.Malformed(sourceName, fmt.Sprintf("lon %q", p.Lon))
	}
	return model.Suggestion{
		PlaceId:     strconv.FormatInt(p.PlaceId, 10),
		Description: p.DisplayName,
		Coordinate:  model.Coordinate{Lat: lat, Lng: lng},
	}, nil
}

//Suggest returns ranked candidates for the search dropdown.
func (c OpenStreetClient) Suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.Suggestion{}, nil
	}
	places, err := c.search(ctx, text, c.suggestionLimit)
	if err != nil {
		return nil, err
	}
	ans := make([]model.Suggestion, 0, len(places))
	for _, p := range places {
		s, err := p.castToSuggestion()
		if err != nil {
			return nil, err
		}
		ans = append(ans, s)
	}
	return ans, nil
}

//Resolve geocodes the address to the coordinate of its best match.
func (c OpenStreetClient) Resolve(ctx context.Context, text string) (model.Coordinate, error) {
	logger.DebugF("resolving address %q", text)
	places, err := c.search(ctx, strings.TrimSpace(text), 1)
	if err != nil {
		return model.Coordinate{}, err
	}
	if len(places) == 0 {
		return model.Coordinate{}, fmt.Errorf("%s: %q: %w", sourceName, text, mapDataClient.ErrNoResults)
	}
	s, err := places[0].castToSuggestion()
	if err != nil {
		return model.Coordinate{}, err
	}
	return s.Coordinate, nil
}

func (c OpenStreetClient) search(ctx context.Context, text string, limit int) ([]place, error) {
	u, err := url.Parse(c.baseURL + searchEndPoint)
	if err != nil {
		return nil, fmt.Errorf("%s: bad base url: %w", sourceName, err)
	}
	q := u.Query()
	q.Add("q", text)
	q.Add("format", "jsonv2")
	q.Add("limit", strconv.Itoa(limit))
	if c.language != "" {
		q.Add("accept-language", c.language)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	response, err := c.webClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sourceName, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, &mapDataClient.APIError{
			Source:     sourceName,
			StatusCode: response.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var places []place
	if err = json.NewDecoder(response.Body).Decode(&places); err != nil {
		return nil, mapDataClient.Malformed(sourceName, err)
	}
	return places, nil
}
