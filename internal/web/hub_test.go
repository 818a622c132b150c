package web_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/internal/web"
	"github.com/japersik/weather-map/model"
)

func dialSession(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) web.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env web.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readUntilEvent(t *testing.T, conn *websocket.Conn, kind mapSession.EventKind) mapSession.View {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == "view" && env.Event != nil && env.Event.Kind == kind {
			var view mapSession.View
			require.NoError(t, json.Unmarshal(env.Payload, &view))
			return view
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, cmdType string, payload any) {
	t.Helper()
	env := web.Envelope{Type: cmdType}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = data
	}
	require.NoError(t, conn.WriteJSON(env))
}

func TestWebSocketPushesViews(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	conn := dialSession(t, env, id)

	first := readEnvelope(t, conn)
	assert.Equal(t, "view", first.Type)
	var snapshot mapSession.View
	require.NoError(t, json.Unmarshal(first.Payload, &snapshot))
	assert.Equal(t, mapSession.SurfaceLoading, snapshot.Surface)

	send(t, conn, "surface_ready", nil)
	view := readUntilEvent(t, conn, mapSession.EventSurfaceChanged)
	assert.Equal(t, mapSession.SurfaceReady, view.Surface)

	send(t, conn, "map_click", model.Coordinate{Lat: 39.7392, Lng: -104.9903})
	view = readUntilEvent(t, conn, mapSession.EventMarkerAdded)
	require.Len(t, view.Markers, 1)
	assert.Equal(t, 72.0, view.Markers[0].Weather.Temperature)

	send(t, conn, "marker_click", map[string]string{"markerId": view.Markers[0].Id})
	view = readUntilEvent(t, conn, mapSession.EventPopupOpened)
	assert.True(t, view.Popup.Visible)

	// REST commands reach websocket subscribers too
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/sessions/"+id+"/selection", nil, nil))
	view = readUntilEvent(t, conn, mapSession.EventPopupClosed)
	assert.False(t, view.Popup.Visible)
}

func TestWebSocketRejectsBadCommands(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	conn := dialSession(t, env, id)
	readEnvelope(t, conn)

	send(t, conn, "teleport", nil)
	reply := readEnvelope(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, string(reply.Payload), "unknown command")

	send(t, conn, "map_click", model.Coordinate{Lat: 1, Lng: 1})
	reply = readEnvelope(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, string(reply.Payload), "not ready")

	require.Eventually(t, func() bool { return env.hub.Subscribers("web:"+id) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.hub.Subscribers("web:"+id) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIdleSessionDisconnectsWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	conn := dialSession(t, env, id)
	readEnvelope(t, conn)
	send(t, conn, "surface_ready", nil)
	readUntilEvent(t, conn, mapSession.EventSurfaceChanged)

	removed := env.registry.RemoveIdle(time.Now().Add(time.Hour))
	assert.Equal(t, []string{"web:" + id}, removed)

	closed := readEnvelope(t, conn)
	assert.Equal(t, "closed", closed.Type)
	require.NotNil(t, closed.Event)
	assert.Equal(t, mapSession.EventSessionClosed, closed.Event.Kind)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, env.hub.Subscribers("web:"+id))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/sessions/"+id, nil, nil))
}

func TestOpenWebSocketKeepsSessionAlive(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	conn := dialSession(t, env, id)
	readEnvelope(t, conn)

	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	send(t, conn, "teleport", nil)
	assert.Equal(t, "error", readEnvelope(t, conn).Type)

	assert.Empty(t, env.registry.RemoveIdle(cutoff))
	assert.Equal(t, []string{"web:" + id}, env.registry.Keys())
	assert.Equal(t, 1, env.hub.Subscribers("web:"+id))
}

func TestBurstOfClicksEndsWithLatestView(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createSession(t)
	conn := dialSession(t, env, id)
	readEnvelope(t, conn)
	send(t, conn, "surface_ready", nil)
	readUntilEvent(t, conn, mapSession.EventSurfaceChanged)

	s, err := env.registry.Get("web:" + id)
	require.NoError(t, err)
	const clicks = 100
	for i := 0; i < clicks; i++ {
		_, err := s.OnMapClick(model.Coordinate{Lat: float64(i % 80), Lng: float64(i)})
		require.NoError(t, err)
	}
	s.Wait()

	for {
		frame := readEnvelope(t, conn)
		require.Equal(t, "view", frame.Type)
		var view mapSession.View
		require.NoError(t, json.Unmarshal(frame.Payload, &view))
		if len(view.Markers) == clicks {
			break
		}
	}
	assert.Equal(t, 1, env.hub.Subscribers("web:"+id))
}
