package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/japersik/weather-map/internal/history"
	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

const sessionKeyPrefix = "web:"

// PublicConfig is what the browser needs to boot its map widget.
type PublicConfig struct {
	MapsAPIKey string           `json:"mapsApiKey"`
	Center     model.ViewCenter `json:"center"`
}

type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Observation, error)
	ForSession(ctx context.Context, sessionKey string) ([]history.Observation, error)
}

// Handler serves the browser map surface.
type Handler struct {
	registry *mapSession.Registry
	hub      *Hub
	history  HistorySource
	public   PublicConfig
	newID    func() string
}

// NewHandler wires the handler. history may be nil when the observation log is disabled.
func NewHandler(registry *mapSession.Registry, hub *Hub, observations HistorySource, public PublicConfig) *Handler {
	return &Handler{
		registry: registry,
		hub:      hub,
		history:  observations,
		public:   public,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// RegisterRoutes attaches all routes to the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/config", h.handleConfig)
	mux.HandleFunc("GET /api/history", h.handleHistory)

	mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGetView)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/surface", h.handleSurface)
	mux.HandleFunc("POST /api/sessions/{id}/clicks", h.handleMapClick)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", h.handleMarkerClick)
	mux.HandleFunc("DELETE /api/sessions/{id}/selection", h.handlePopupClose)
	mux.HandleFunc("GET /api/sessions/{id}/suggestions", h.handleSuggest)
	mux.HandleFunc("POST /api/sessions/{id}/search", h.handleSearch)
	mux.HandleFunc("POST /api/sessions/{id}/reset", h.handleReset)
	mux.HandleFunc("GET /api/sessions/{id}/ws", h.handleWebSocket)
	mux.HandleFunc("GET /api/sessions/{id}/history", h.handleSessionHistory)
}

// handleHealth returns 204 No Content for liveness checks.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.public)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	obs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		logger.ErrorF("reading history: %v", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// handleSessionHistory lists what a session observed. It keeps answering after the session is gone.
func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history disabled")
		return
	}
	obs, err := h.history.ForSession(r.Context(), sessionKeyPrefix+r.PathValue("id"))
	if err != nil {
		logger.ErrorF("reading history of %s: %v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.newID()
	session, _ := h.registry.GetOrCreate(sessionKeyPrefix+id, func(s *mapSession.Session) {
		s.AddObserver(h.hub)
	})
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "view": session.View()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*mapSession.Session, bool) {
	session, err := h.registry.Get(sessionKeyPrefix + r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) handleGetView(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, session.View())
	}
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Remove(sessionKeyPrefix + r.PathValue("id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSurface(w http.ResponseWriter, r *http.Request) {
	var req surfaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cmd := cmdSurfaceError
	if req.Ready {
		cmd = cmdSurfaceReady
	}
	h.command(w, r, cmd, req, http.StatusOK)
}

func (h *Handler) handleMapClick(w http.ResponseWriter, r *http.Request) {
	var c model.Coordinate
	if !decodeBody(w, r, &c) {
		return
	}
	h.command(w, r, cmdMapClick, c, http.StatusAccepted)
}

func (h *Handler) handleMarkerClick(w http.ResponseWriter, r *http.Request) {
	var req markerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.command(w, r, cmdMarkerClick, req, http.StatusOK)
}

func (h *Handler) handlePopupClose(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, cmdPopupClose, nil, http.StatusOK)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.command(w, r, cmdSearchSelect, req, http.StatusAccepted)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, cmdReset, nil, http.StatusOK)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	suggestions, err := session.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		h.hub.Serve(w, r, session)
	}
}

// command runs the same command the websocket would and answers with its
// result, or the session view when the command has none.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, cmdType string, body any, status int) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload json.RawMessage
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		payload = json.RawMessage(`{}`)
	}
	result, err := dispatch(session, cmdType, payload)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if result == nil {
		result = session.View()
	}
	writeJSON(w, status, result)
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var apiErr *mapDataClient.APIError
	switch {
	case errors.Is(err, mapSession.ErrUnknownSession), errors.Is(err, mapSession.ErrUnknownMarker):
		return http.StatusNotFound
	case errors.Is(err, mapSession.ErrInvalidCoordinate), errors.Is(err, mapSession.ErrEmptyAddress), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, mapSession.ErrSurfaceNotReady), errors.Is(err, mapSession.ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &apiErr),
		errors.Is(err, mapDataClient.ErrMalformedResponse),
		errors.Is(err, mapDataClient.ErrMissingAPIKey),
		errors.Is(err, mapDataClient.ErrNoResults):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.ErrorF("request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnF("writing response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
