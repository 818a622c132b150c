package mapSession

import "github.com/japersik/weather-map/model"

type EventKind string

const (
	EventSurfaceChanged EventKind = "surface_changed"
	EventLookupStarted  EventKind = "lookup_started"
	EventMarkerAdded    EventKind = "marker_added"
	EventLookupFailed   EventKind = "lookup_failed"
	EventLookupDropped  EventKind = "lookup_dropped"
	EventPopupOpened    EventKind = "popup_opened"
	EventPopupClosed    EventKind = "popup_closed"
	EventSearchStarted  EventKind = "search_started"
	EventCenterChanged  EventKind = "center_changed"
	EventSearchFailed   EventKind = "search_failed"
	EventSessionReset   EventKind = "session_reset"
	EventSessionClosed  EventKind = "session_closed"
)

// Event describes one state change. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind         `json:"kind"`
	SessionKey string            `json:"sessionKey"`
	Marker     *model.Marker     `json:"marker,omitempty"`
	Lookup     *Lookup           `json:"lookup,omitempty"`
	Center     *model.ViewCenter `json:"center,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Observer is told about every state change after it happened.
// Notify runs on the goroutine that made the change and must not block for long.
type Observer interface {
	Notify(event Event)
}

type ObserverFunc func(event Event)

func (f ObserverFunc) Notify(event Event) {
	f(event)
}
