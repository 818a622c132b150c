package mapSession

import (
	"sort"
	"time"

	"github.com/japersik/weather-map/model"
)

type SurfaceStatus string

const (
	SurfaceLoading SurfaceStatus = "loading"
	SurfaceReady   SurfaceStatus = "ready"
	SurfaceFailed  SurfaceStatus = "failed"
)

const (
	loadingPlaceholder = "Loading Map"
	errorPlaceholder   = "Error loading"
)

type LookupStatus string

const (
	LookupPending LookupStatus = "pending"
	LookupFailed  LookupStatus = "failed"
)

// Lookup is a weather request issued by a map click that has not produced a marker.
type Lookup struct {
	Id         string           `json:"id"`
	Seq        uint64           `json:"seq"`
	Coordinate model.Coordinate `json:"coordinate"`
	Status     LookupStatus     `json:"status"`
	Error      string           `json:"error,omitempty"`
	IssuedAt   time.Time        `json:"issuedAt"`
}

type SearchState struct {
	Query   string `json:"query,omitempty"`
	Pending bool   `json:"pending"`
	Error   string `json:"error,omitempty"`
}

// Popup is the detail popup: hidden, or showing exactly one marker.
type Popup struct {
	Visible bool          `json:"visible"`
	Marker  *model.Marker `json:"marker,omitempty"`
}

// State is everything a map session knows. Transitions never modify the
// receiver; they return a new value, so snapshots handed out stay stable.
type State struct {
	Surface      SurfaceStatus
	SurfaceError string
	Markers      []model.Marker
	Lookups      []Lookup
	Selected     string
	Center       model.ViewCenter
	Search       SearchState
}

func NewState(center model.ViewCenter) State {
	return State{Surface: SurfaceLoading, Center: center}
}

func (s State) WithSurfaceReady() State {
	s.Surface = SurfaceReady
	s.SurfaceError = ""
	return s
}

func (s State) WithSurfaceFailed(reason string) State {
	s.Surface = SurfaceFailed
	s.SurfaceError = reason
	return s
}

func (s State) WithLookupStarted(l Lookup) State {
	l.Status = LookupPending
	s.Lookups = insertLookup(s.Lookups, l)
	return s
}

// WithMarker settles the lookup that issued m and places m by issuance order.
func (s State) WithMarker(m model.Marker) State {
	s.Lookups = removeLookup(s.Lookups, m.Seq)
	markers := make([]model.Marker, 0, len(s.Markers)+1)
	markers = append(markers, s.Markers...)
	i := sort.Search(len(markers), func(i int) bool { return markers[i].Seq > m.Seq })
	markers = append(markers, model.Marker{})
	copy(markers[i+1:], markers[i:])
	markers[i] = m
	s.Markers = markers
	return s
}

// WithLookupFailed settles a failed lookup. With keep it stays visible as
// failed, otherwise it disappears as if the click never happened.
func (s State) WithLookupFailed(seq uint64, reason string, keep bool) State {
	if !keep {
		s.Lookups = removeLookup(s.Lookups, seq)
		return s
	}
	lookups := make([]Lookup, len(s.Lookups))
	copy(lookups, s.Lookups)
	for i := range lookups {
		if lookups[i].Seq == seq {
			lookups[i].Status = LookupFailed
			lookups[i].Error = reason
		}
	}
	s.Lookups = lookups
	return s
}

func (s State) WithSelection(markerId string) (State, error) {
	if _, ok := s.Marker(markerId); !ok {
		return s, ErrUnknownMarker
	}
	s.Selected = markerId
	return s, nil
}

func (s State) WithoutSelection() State {
	s.Selected = ""
	return s
}

func (s State) WithSearchStarted(query string) State {
	s.Search = SearchState{Query: query, Pending: true}
	return s
}

func (s State) WithCenter(coordinate model.Coordinate, zoom int) State {
	s.Center = model.ViewCenter{Coordinate: coordinate, Zoom: zoom}
	s.Search = SearchState{Query: s.Search.Query}
	return s
}

func (s State) WithSearchFailed(reason string) State {
	s.Search = SearchState{Query: s.Search.Query, Error: reason}
	return s
}

// Reset drops markers and lookups. A selection can't outlive its marker,
// so the popup goes back to hidden.
func (s State) Reset() State {
	s.Markers = nil
	s.Lookups = nil
	s.Selected = ""
	return s
}

func (s State) Marker(id string) (model.Marker, bool) {
	for _, m := range s.Markers {
		if m.Id == id {
			return m, true
		}
	}
	return model.Marker{}, false
}

func (s State) hasLookup(seq uint64) bool {
	for _, l := range s.Lookups {
		if l.Seq == seq {
			return true
		}
	}
	return false
}

func (s State) Popup() Popup {
	if s.Selected == "" {
		return Popup{}
	}
	m, ok := s.Marker(s.Selected)
	if !ok {
		return Popup{}
	}
	return Popup{Visible: true, Marker: &m}
}

// View is the read-only snapshot rendered by surfaces.
type View struct {
	Surface      SurfaceStatus    `json:"surface"`
	Placeholder  string           `json:"placeholder,omitempty"`
	SurfaceError string           `json:"surfaceError,omitempty"`
	Center       model.ViewCenter `json:"center"`
	Markers      []model.Marker   `json:"markers"`
	Lookups      []Lookup         `json:"lookups"`
	Popup        Popup            `json:"popup"`
	Search       SearchState      `json:"search"`
}

func (s State) View() View {
	v := View{
		Surface:      s.Surface,
		SurfaceError: s.SurfaceError,
		Center:       s.Center,
		Markers:      append([]model.Marker{}, s.Markers...),
		Lookups:      append([]Lookup{}, s.Lookups...),
		Popup:        s.Popup(),
		Search:       s.Search,
	}
	switch s.Surface {
	case SurfaceLoading:
		v.Placeholder = loadingPlaceholder
	case SurfaceFailed:
		v.Placeholder = errorPlaceholder
	}
	return v
}

func insertLookup(lookups []Lookup, l Lookup) []Lookup {
	ans := make([]Lookup, 0, len(lookups)+1)
	ans = append(ans, lookups...)
	i := sort.Search(len(ans), func(i int) bool { return ans[i].Seq > l.Seq })
	ans = append(ans, Lookup{})
	copy(ans[i+1:], ans[i:])
	ans[i] = l
	return ans
}

func removeLookup(lookups []Lookup, seq uint64) []Lookup {
	ans := make([]Lookup, 0, len(lookups))
	for _, l := range lookups {
		if l.Seq != seq {
			ans = append(ans, l)
		}
	}
	return ans
}
