package web

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/model"
)

var errBadRequest = errors.New("bad request")

// Inbound command types accepted over the websocket.
const (
	cmdMapClick     = "map_click"
	cmdMarkerClick  = "marker_click"
	cmdPopupClose   = "popup_close"
	cmdSearchSelect = "search_select"
	cmdSurfaceReady = "surface_ready"
	cmdSurfaceError = "surface_error"
	cmdReset        = "reset"
)

type markerRequest struct {
	MarkerId string `json:"markerId"`
}

type searchRequest struct {
	Address string `json:"address"`
}

type surfaceRequest struct {
	Ready bool   `json:"ready"`
	Error string `json:"error"`
}

type commandFunc func(s *mapSession.Session, payload json.RawMessage) (any, error)

var commands = map[string]commandFunc{
	cmdMapClick: func(s *mapSession.Session, payload json.RawMessage) (any, error) {
		var c model.Coordinate
		if err := decodePayload(payload, &c); err != nil {
			return nil, err
		}
		return s.OnMapClick(c)
	},
	cmdMarkerClick: func(s *mapSession.Session, payload json.RawMessage) (any, error) {
		var req markerRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return nil, s.OnMarkerClick(req.MarkerId)
	},
	cmdPopupClose: func(s *mapSession.Session, _ json.RawMessage) (any, error) {
		s.OnPopupClose()
		return nil, nil
	},
	cmdSearchSelect: func(s *mapSession.Session, payload json.RawMessage) (any, error) {
		var req searchRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return nil, s.OnSearchSelect(req.Address)
	},
	cmdSurfaceReady: func(s *mapSession.Session, _ json.RawMessage) (any, error) {
		return nil, s.SurfaceReady()
	},
	cmdSurfaceError: func(s *mapSession.Session, payload json.RawMessage) (any, error) {
		var req surfaceRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return nil, s.SurfaceFailed(req.Error)
	},
	cmdReset: func(s *mapSession.Session, _ json.RawMessage) (any, error) {
		return nil, s.Reset()
	},
}

func dispatch(s *mapSession.Session, cmdType string, payload json.RawMessage) (any, error) {
	fn, ok := commands[cmdType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", errBadRequest, cmdType)
	}
	return fn(s, payload)
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", errBadRequest)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
