package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japersik/weather-map/internal/history"
	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/internal/web"
	"github.com/japersik/weather-map/model"
)

var boulder = model.Coordinate{Lat: 40.0, Lng: -105.0}

type stubWeather struct{}

func (stubWeather) GetCurrentWeather(_ context.Context, c model.Coordinate) (*model.WeatherSnapshot, error) {
	if c.Lat < 0 {
		return nil, &mapDataClient.APIError{Source: "openweathermap", StatusCode: 500}
	}
	return &model.WeatherSnapshot{Temperature: 72.0, ConditionDescription: "clear sky"}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Suggest(_ context.Context, text string) ([]model.Suggestion, error) {
	return []model.Suggestion{{PlaceId: "101", Description: text + "er, Colorado", Coordinate: boulder}}, nil
}

func (stubGeocoder) Resolve(_ context.Context, text string) (model.Coordinate, error) {
	if text == "Atlantis" {
		return model.Coordinate{}, mapDataClient.ErrNoResults
	}
	return boulder, nil
}

type stubHistory struct {
	obs []history.Observation
	err error
}

func (s stubHistory) Recent(_ context.Context, limit int) ([]history.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.obs) {
		return s.obs[:limit], nil
	}
	return s.obs, nil
}

func (s stubHistory) ForSession(_ context.Context, sessionKey string) ([]history.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	obs := []history.Observation{}
	for _, o := range s.obs {
		if o.SessionKey == sessionKey {
			obs = append(obs, o)
		}
	}
	return obs, nil
}

type testEnv struct {
	srv      *httptest.Server
	registry *mapSession.Registry
	hub      *web.Hub
}

func newTestEnv(t *testing.T, observations web.HistorySource) *testEnv {
	t.Helper()
	registry := mapSession.NewRegistry(func(key string) *mapSession.Session {
		return mapSession.New(key, mapDataClient.Client{WeatherInfoSource: stubWeather{}, GeocodeSource: stubGeocoder{}}, mapSession.Options{
			TimeZone: func(lat, lng float64) string { return "America/Denver" },
		})
	})
	hub := web.NewHub(registry)
	mux := http.NewServeMux()
	web.NewHandler(registry, hub, observations, web.PublicConfig{MapsAPIKey: "maps-key", Center: mapSession.DefaultCenter}).RegisterRoutes(mux)
	srv := httptest.NewServer(web.WithLogging(mux))
	t.Cleanup(func() {
		hub.Close()
		registry.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, registry: registry, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	var created struct {
		Id   string          `json:"id"`
		View mapSession.View `json:"view"`
	}
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/sessions", nil, &created))
	require.NotEmpty(t, created.Id)
	assert.Equal(t, "Loading Map", created.View.Placeholder)
	return created.Id
}

func (e *testEnv) wait(t *testing.T, id string) {
	t.Helper()
	s, err := e.registry.Get("web:" + id)
	require.NoError(t, err)
	s.Wait()
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodGet, "/health", nil, nil))
}

func TestConfigHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	var cfg web.PublicConfig
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/config", nil, &cfg))
	assert.Equal(t, "maps-key", cfg.MapsAPIKey)
	assert.Equal(t, mapSession.DefaultCenter, cfg.Center)
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	base := "/api/sessions/" + id

	var errBody map[string]string
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, base+"/clicks", model.Coordinate{Lat: 39.7392, Lng: -104.9903}, &errBody))
	assert.Contains(t, errBody["error"], "not ready")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/surface", map[string]any{"ready": true}, nil))

	var lookup mapSession.Lookup
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, base+"/clicks", model.Coordinate{Lat: 39.7392, Lng: -104.9903}, &lookup))
	assert.Equal(t, mapSession.LookupPending, lookup.Status)
	env.wait(t, id)

	var view mapSession.View
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base, nil, &view))
	require.Len(t, view.Markers, 1)
	assert.Equal(t, lookup.Id, view.Markers[0].Id)
	assert.Equal(t, 72.0, view.Markers[0].Weather.Temperature)
	assert.Equal(t, "clear sky", view.Markers[0].Weather.ConditionDescription)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, base+"/selection", map[string]string{"markerId": "nope"}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, base+"/selection", map[string]string{"markerId": lookup.Id}, &view))
	require.True(t, view.Popup.Visible)
	assert.Equal(t, lookup.Id, view.Popup.Marker.Id)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/selection", nil, &view))
	assert.False(t, view.Popup.Visible)

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, base+"/search", map[string]string{"address": "Boulder"}, nil))
	env.wait(t, id)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base, nil, &view))
	assert.Equal(t, boulder, view.Center.Coordinate)
	assert.Len(t, view.Markers, 1)

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, base+"/search", map[string]string{"address": "Atlantis"}, nil))
	env.wait(t, id)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base, nil, &view))
	assert.Equal(t, boulder, view.Center.Coordinate)
	assert.Equal(t, `no place found for "Atlantis"`, view.Search.Error)

	var suggestions []model.Suggestion
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/suggestions?q=Bould", nil, &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Boulder, Colorado", suggestions[0].Description)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/reset", nil, &view))
	assert.Empty(t, view.Markers)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil, nil))
}

func TestFailedLookupIsReported(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/surface", map[string]any{"ready": true}, nil))

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, base+"/clicks", model.Coordinate{Lat: -33.9, Lng: 18.4}, nil))
	env.wait(t, id)

	var view mapSession.View
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base, nil, &view))
	assert.Empty(t, view.Markers)
	require.Len(t, view.Lookups, 1)
	assert.Equal(t, mapSession.LookupFailed, view.Lookups[0].Status)
	assert.Contains(t, view.Lookups[0].Error, "status 500")
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	base := "/api/sessions/" + id
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/surface", map[string]any{"ready": true}, nil))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/clicks", "{not json", nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/clicks", model.Coordinate{Lat: 100, Lng: 0}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/search", map[string]string{"address": " "}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/unknown", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/sessions/unknown/reset", nil, nil))
}

func TestSurfaceError(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)

	var view mapSession.View
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/sessions/"+id+"/surface", map[string]any{"error": "InvalidKeyMapError"}, &view))
	assert.Equal(t, mapSession.SurfaceFailed, view.Surface)
	assert.Equal(t, "Error loading", view.Placeholder)
	assert.Equal(t, "InvalidKeyMapError", view.SurfaceError)
}

func TestHistoryHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/history", nil, nil))

	now := time.Now().UTC()
	env = newTestEnv(t, stubHistory{obs: []history.Observation{
		{MarkerID: "m2", Temperature: 71, ObservedAt: now},
		{MarkerID: "m1", Temperature: 70, ObservedAt: now.Add(-time.Minute)},
	}})
	var obs []history.Observation
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/history?limit=1", nil, &obs))
	require.Len(t, obs, 1)
	assert.Equal(t, "m2", obs[0].MarkerID)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/history?limit=zero", nil, nil))

	env = newTestEnv(t, stubHistory{err: errors.New("db locked")})
	assert.Equal(t, http.StatusInternalServerError, env.do(t, http.MethodGet, "/api/history", nil, nil))
}

func TestSessionHistoryHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/abc/history", nil, nil))

	now := time.Now().UTC()
	env = newTestEnv(t, stubHistory{obs: []history.Observation{
		{SessionKey: "web:abc", MarkerID: "m1", ObservedAt: now},
		{SessionKey: "web:other", MarkerID: "m2", ObservedAt: now},
		{SessionKey: "web:abc", MarkerID: "m3", ObservedAt: now},
	}})
	var obs []history.Observation
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/sessions/abc/history", nil, &obs))
	require.Len(t, obs, 2)
	assert.Equal(t, "m1", obs[0].MarkerID)
	assert.Equal(t, "m3", obs[1].MarkerID)

	env = newTestEnv(t, stubHistory{err: errors.New("db locked")})
	assert.Equal(t, http.StatusInternalServerError, env.do(t, http.MethodGet, "/api/sessions/abc/history", nil, nil))
}
