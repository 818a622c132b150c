package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/japersik/weather-map/internal/mapSession"
	"github.com/japersik/weather-map/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is every websocket frame in both directions.
type Envelope struct {
	Type    string            `json:"type"`
	Event   *mapSession.Event `json:"event,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

const (
	typeView   = "view"
	typeError  = "error"
	typeAck    = "ack"
	typeClosed = "closed"

	eventSnapshot mapSession.EventKind = "snapshot"
)

type wsClient struct {
	hub     *Hub
	session *mapSession.Session
	conn    *websocket.Conn
	send    chan []byte
}

// Hub pushes session views to the websockets watching them. It is a
// mapSession.Observer for every browser session.
type Hub struct {
	order   sync.Mutex
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	views   func(key string) (mapSession.View, error)
}

func NewHub(registry *mapSession.Registry) *Hub {
	return &Hub{
		clients: map[string]map[*wsClient]struct{}{},
		views: func(key string) (mapSession.View, error) {
			s, err := registry.Get(key)
			if err != nil {
				return mapSession.View{}, err
			}
			return s.View(), nil
		},
	}
}

//Notify sends the session's current view to its subscribers. A subscriber that
//falls behind loses its oldest frames, never the newest view. When the session
//closes its subscribers are told and disconnected.
func (h *Hub) Notify(event mapSession.Event) {
	if event.Kind == mapSession.EventSessionClosed {
		h.disconnect(event.SessionKey)
		return
	}
	if h.Subscribers(event.SessionKey) == 0 {
		return
	}

	// views are read and queued in one step so a later view is never overtaken by an older one
	h.order.Lock()
	defer h.order.Unlock()
	view, err := h.views(event.SessionKey)
	if err != nil {
		return
	}
	msg, err := viewMessage(event, view)
	if err != nil {
		logger.ErrorF("encoding view for %s: %v", event.SessionKey, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[event.SessionKey] {
		c.push(msg)
	}
}

// disconnect sends a final closed frame to the session's subscribers and hangs up.
func (h *Hub) disconnect(key string) {
	msg, err := json.Marshal(Envelope{Type: typeClosed, Event: &mapSession.Event{Kind: mapSession.EventSessionClosed, SessionKey: key}})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[key] {
		c.push(msg)
		close(c.send)
	}
	if n := len(h.clients[key]); n > 0 {
		logger.InfoF("session %s closed, disconnecting %d websocket(s)", key, n)
	}
	delete(h.clients, key)
}

func viewMessage(event mapSession.Event, view mapSession.View) ([]byte, error) {
	payload, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	ev := event
	return json.Marshal(Envelope{Type: typeView, Event: &ev, Payload: payload})
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := c.session.Key()
	if h.clients[key] == nil {
		h.clients[key] = map[*wsClient]struct{}{}
	}
	h.clients[key][c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := c.session.Key()
	if _, ok := h.clients[key][c]; !ok {
		return
	}
	delete(h.clients[key], c)
	if len(h.clients[key]) == 0 {
		delete(h.clients, key)
	}
	close(c.send)
}

//Subscribers returns how many websockets watch the session.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

//Serve upgrades the request and attaches the connection to the session.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session *mapSession.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("websocket upgrade for %s: %v", session.Key(), err)
		return
	}
	c := &wsClient{hub: h, session: session, conn: conn, send: make(chan []byte, sendBufferSize)}

	// the new subscriber starts from the current view
	if msg, err := viewMessage(mapSession.Event{Kind: eventSnapshot, SessionKey: session.Key()}, session.View()); err == nil {
		c.send <- msg
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

//Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, clients := range h.clients {
		for c := range clients {
			close(c.send)
		}
		delete(h.clients, key)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump turns inbound envelopes into session commands.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.session.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnF("websocket read for %s: %v", c.session.Key(), err)
			}
			return
		}
		// an open tab keeps its session alive
		c.session.Touch()
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reply(typeError, errorBody{Error: "malformed envelope"})
			continue
		}
		result, err := dispatch(c.session, env.Type, env.Payload)
		if err != nil {
			c.reply(typeError, errorBody{Error: err.Error()})
			continue
		}
		if result != nil {
			c.reply(typeAck, result)
		}
	}
}

func (c *wsClient) reply(msgType string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	msg, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.session.Key()][c]; !ok {
		return
	}
	c.push(msg)
}

// push queues msg, discarding the oldest queued frames when the buffer is full.
// Callers hold the hub lock so send is never closed underneath.
func (c *wsClient) push(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}
