package mapSession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zsefvlol/timezonemapper"
	"go.opentelemetry.io/otel/metric"

	"github.com/japersik/weather-map/internal/mapDataClient"
	"github.com/japersik/weather-map/logger"
	"github.com/japersik/weather-map/model"
)

// FailurePolicy decides what a failed weather lookup leaves behind.
type FailurePolicy string

const (
	// ReportFailures keeps the failed lookup in the view with its error.
	ReportFailures FailurePolicy = "report"
	// DropFailures forgets the click as if it never happened.
	DropFailures FailurePolicy = "drop"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ReportFailures, DropFailures:
		return p, nil
	case "":
		return ReportFailures, nil
	default:
		return "", fmt.Errorf("unknown weather failure policy %q", s)
	}
}

// Recorder persists markers once they exist. Its errors are logged, never surfaced.
type Recorder interface {
	RecordMarker(ctx context.Context, sessionKey string, marker model.Marker) error
}

var DefaultCenter = model.ViewCenter{
	Coordinate: model.Coordinate{Lat: 39.7392, Lng: -104.9903},
	Zoom:       5,
}

const DefaultSearchZoom = 14

type Options struct {
	Center        model.ViewCenter
	SearchZoom    int
	FailurePolicy FailurePolicy
	Recorder      Recorder
	Observers     []Observer
	Meter         metric.Meter

	NewID    func() string
	TimeZone func(lat, lng float64) string
	Now      func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Center:        DefaultCenter,
		SearchZoom:    DefaultSearchZoom,
		FailurePolicy: ReportFailures,
	}
}

func (o *Options) fillDefaults() {
	if o.Center == (model.ViewCenter{}) {
		o.Center = DefaultCenter
	}
	if o.SearchZoom <= 0 {
		o.SearchZoom = DefaultSearchZoom
	}
	if o.FailurePolicy == "" {
		o.FailurePolicy = ReportFailures
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if o.TimeZone == nil {
		o.TimeZone = timezonemapper.LatLngToTimezoneString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Session is one user's map: markers placed by clicks, the popup, the
// camera and the search box. All methods are safe for concurrent use.
type Session struct {
	key      string
	weather  mapDataClient.WeatherInfoSource
	geocoder mapDataClient.GeocodeSource
	opts     Options
	metrics  *instruments

	mu           sync.Mutex
	state        State
	observers    []Observer
	nextSeq      uint64
	searchGen    uint64
	cancelSearch context.CancelFunc
	closed       bool
	lastActivity time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(key string, client mapDataClient.Client, opts Options) *Session {
	opts.fillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		key:       key,
		weather:   client.WeatherInfoSource,
		geocoder:  client.GeocodeSource,
		opts:      opts,
		metrics:   newInstruments(opts.Meter),
		state:     NewState(opts.Center),
		observers: append([]Observer{}, opts.Observers...),
		ctx:       ctx,
		cancel:    cancel,

		lastActivity: opts.Now(),
	}
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// update applies fn under the lock and delivers its events afterwards.
func (s *Session) update(fn func(st State) (State, []Event, error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	next, events, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.lastActivity = s.opts.Now()
	observers := s.observers
	s.mu.Unlock()

	for _, e := range events {
		e.SessionKey = s.key
		for _, o := range observers {
			o.Notify(e)
		}
	}
	return nil
}

//SurfaceReady is the map surface's "on ready" signal. Interaction is refused until it arrives.
func (s *Session) SurfaceReady() error {
	return s.update(func(st State) (State, []Event, error) {
		return st.WithSurfaceReady(), []Event{{Kind: EventSurfaceChanged, Message: string(SurfaceReady)}}, nil
	})
}

//SurfaceFailed records that the map surface could not load.
func (s *Session) SurfaceFailed(reason string) error {
	if reason == "" {
		reason = errorPlaceholder
	}
	logger.WarnF("session %s: map surface failed: %s", s.key, reason)
	return s.update(func(st State) (State, []Event, error) {
		return st.WithSurfaceFailed(reason), []Event{{Kind: EventSurfaceChanged, Message: reason}}, nil
	})
}

//OnMapClick starts a weather lookup at the coordinate. The marker appears once the lookup succeeds.
func (s *Session) OnMapClick(coordinate model.Coordinate) (Lookup, error) {
	if !coordinate.Valid() {
		return Lookup{}, ErrInvalidCoordinate
	}
	var lookup Lookup
	err := s.update(func(st State) (State, []Event, error) {
		if st.Surface != SurfaceReady {
			return st, nil, ErrSurfaceNotReady
		}
		s.nextSeq++
		lookup = Lookup{
			Id:         s.opts.NewID(),
			Seq:        s.nextSeq,
			Coordinate: coordinate,
			Status:     LookupPending,
			IssuedAt:   s.opts.Now(),
		}
		s.wg.Add(1)
		started := lookup
		return st.WithLookupStarted(lookup), []Event{{Kind: EventLookupStarted, Lookup: &started}}, nil
	})
	if err != nil {
		return Lookup{}, err
	}
	go s.lookupWeather(lookup)
	return lookup, nil
}

func (s *Session) lookupWeather(lookup Lookup) {
	defer s.wg.Done()
	s.metrics.inflight.Add(context.Background(), 1)
	defer s.metrics.inflight.Add(context.Background(), -1)

	snapshot, err := s.weather.GetCurrentWeather(s.ctx, lookup.Coordinate)
	if err != nil {
		s.failLookup(lookup, err)
		return
	}
	s.metrics.lookupDone(context.Background(), outcomeOK)

	marker := model.Marker{
		Id:         lookup.Id,
		Seq:        lookup.Seq,
		Coordinate: lookup.Coordinate,
		Weather:    *snapshot,
		TimeZone:   s.opts.TimeZone(lookup.Coordinate.Lat, lookup.Coordinate.Lng),
		CreatedAt:  s.opts.Now(),
	}
	placed := false
	_ = s.update(func(st State) (State, []Event, error) {
		if !st.hasLookup(lookup.Seq) {
			return st, nil, nil
		}
		placed = true
		added := marker
		return st.WithMarker(marker), []Event{{Kind: EventMarkerAdded, Marker: &added}}, nil
	})
	if !placed {
		return
	}
	logger.InfoF("session %s: marker %s at (%f, %f): %.1f°F %s", s.key, marker.Id,
		marker.Coordinate.Lat, marker.Coordinate.Lng, marker.Weather.Temperature, marker.Weather.ConditionDescription)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordMarker(s.ctx, s.key, marker); err != nil {
			logger.ErrorF("session %s: recording marker %s: %v", s.key, marker.Id, err)
		}
	}
}

func (s *Session) failLookup(lookup Lookup, cause error) {
	s.metrics.lookupDone(context.Background(), outcomeFailed)
	if errors.Is(cause, context.Canceled) {
		return
	}
	logger.WarnF("session %s: weather lookup at (%f, %f) failed: %v", s.key, lookup.Coordinate.Lat, lookup.Coordinate.Lng, cause)

	keep := s.opts.FailurePolicy == ReportFailures
	_ = s.update(func(st State) (State, []Event, error) {
		if !st.hasLookup(lookup.Seq) {
			return st, nil, nil
		}
		failed := lookup
		failed.Status = LookupFailed
		failed.Error = cause.Error()
		kind := EventLookupFailed
		if !keep {
			kind = EventLookupDropped
		}
		return st.WithLookupFailed(lookup.Seq, failed.Error, keep), []Event{{Kind: kind, Lookup: &failed, Message: failed.Error}}, nil
	})
}

//OnMarkerClick opens the popup for an existing marker.
func (s *Session) OnMarkerClick(markerId string) error {
	return s.update(func(st State) (State, []Event, error) {
		if st.Surface != SurfaceReady {
			return st, nil, ErrSurfaceNotReady
		}
		next, err := st.WithSelection(markerId)
		if err != nil {
			return st, nil, err
		}
		m, _ := next.Marker(markerId)
		return next, []Event{{Kind: EventPopupOpened, Marker: &m}}, nil
	})
}

//OnPopupClose hides the popup whatever it was showing.
func (s *Session) OnPopupClose() {
	_ = s.update(func(st State) (State, []Event, error) {
		return st.WithoutSelection(), []Event{{Kind: EventPopupClosed}}, nil
	})
}

//OnSearchSelect resolves the address and moves the camera there.
//A newer search cancels the one in flight; only the latest may move the camera.
func (s *Session) OnSearchSelect(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrEmptyAddress
	}
	var (
		gen uint64
		ctx context.Context
	)
	err := s.update(func(st State) (State, []Event, error) {
		if st.Surface != SurfaceReady {
			return st, nil, ErrSurfaceNotReady
		}
		if s.cancelSearch != nil {
			s.cancelSearch()
		}
		s.searchGen++
		gen = s.searchGen
		ctx, s.cancelSearch = context.WithCancel(s.ctx)
		s.wg.Add(1)
		return st.WithSearchStarted(address), []Event{{Kind: EventSearchStarted, Message: address}}, nil
	})
	if err != nil {
		return err
	}
	go s.resolveSearch(ctx, gen, address)
	return nil
}

func (s *Session) resolveSearch(ctx context.Context, gen uint64, address string) {
	defer s.wg.Done()

	coordinate, err := s.geocoder.Resolve(ctx, address)
	if err == nil && !coordinate.Valid() {
		err = fmt.Errorf("%w: geocoder returned (%f, %f)", ErrInvalidCoordinate, coordinate.Lat, coordinate.Lng)
	}

	outcome := ""
	_ = s.update(func(st State) (State, []Event, error) {
		if gen != s.searchGen {
			outcome = outcomeSuperseded
			return st, nil, nil
		}
		s.cancelSearch()
		s.cancelSearch = nil
		if err != nil {
			outcome = outcomeFailed
			msg := searchErrorMessage(address, err)
			return st.WithSearchFailed(msg), []Event{{Kind: EventSearchFailed, Message: msg}}, nil
		}
		outcome = outcomeOK
		next := st.WithCenter(coordinate, s.opts.SearchZoom)
		center := next.Center
		return next, []Event{{Kind: EventCenterChanged, Center: &center, Message: address}}, nil
	})

	switch outcome {
	case "":
		return
	case outcomeFailed:
		logger.WarnF("session %s: search %q failed: %v", s.key, address, err)
	case outcomeSuperseded:
		logger.DebugF("session %s: search %q superseded", s.key, address)
	}
	s.metrics.searchDone(context.Background(), outcome)
}

func searchErrorMessage(address string, err error) string {
	if errors.Is(err, mapDataClient.ErrNoResults) {
		return fmt.Sprintf("no place found for %q", address)
	}
	return fmt.Sprintf("search for %q failed: %v", address, err)
}

//Suggest returns dropdown candidates for partially typed text.
func (s *Session) Suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	s.mu.Lock()
	closed, surface := s.closed, s.state.Surface
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if surface != SurfaceReady {
		return nil, ErrSurfaceNotReady
	}
	if strings.TrimSpace(text) == "" {
		return []model.Suggestion{}, nil
	}
	return s.geocoder.Suggest(ctx, text)
}

//Reset clears markers, lookups and the popup. Lookups still in flight are discarded when they settle.
func (s *Session) Reset() error {
	return s.update(func(st State) (State, []Event, error) {
		return st.Reset(), []Event{{Kind: EventSessionReset}}, nil
	})
}

//Touch marks the session as in use without changing its state.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.opts.Now()
}

//LastActivity is when the session was last changed or touched.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() View {
	return s.State().View()
}

func (s *Session) Markers() []model.Marker {
	return s.View().Markers
}

func (s *Session) Popup() Popup {
	return s.State().Popup()
}

//Wait blocks until every lookup and search started so far has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

//Close cancels outstanding lookups and waits for them, then tells observers
//the session is gone. Further events are refused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	observers := s.observers
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()

	for _, o := range observers {
		o.Notify(Event{Kind: EventSessionClosed, SessionKey: s.key})
	}
}
