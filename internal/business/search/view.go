package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/maps"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/preferences"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/rs/zerolog"
)

var (
	// ErrPlatformNotReady is returned by map operations before a successful Init.
	ErrPlatformNotReady = errors.New("map platform is not ready")
	// ErrUnknownMarker is returned for marker ids that are not currently rendered.
	ErrUnknownMarker = errors.New("unknown marker")
	// ErrUnknownPlace is returned for places that cannot be resolved or have no open popup.
	ErrUnknownPlace = errors.New("unknown place")
	// ErrUnknownClass is returned for marker classes the view does not enable.
	ErrUnknownClass = errors.New("marker class not enabled for this view")
)

// Notification copy.
const (
	MsgPlatformFailed = "Failed to load map platform"
	MsgSearchFailed   = "Failed to fetch parking data."
)

const maxNotifications = 10

// Platform is the maps capability a view needs.
type Platform interface {
	Load(ctx context.Context) error
	Autocomplete(ctx context.Context, input string) ([]maps.Prediction, error)
	PlaceDetails(ctx context.Context, placeID string) (maps.Place, error)
}

// Searcher runs the backend parking search.
type Searcher interface {
	SearchParking(ctx context.Context, lat, lng float64) (model.ParkingSearchResult, error)
}

// StatRecorder bumps usage counters on the user's profile.
type StatRecorder interface {
	IncrementUserStat(ctx context.Context, userID string, stat model.StatName) error
}

// Notification is a transient message for the user.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Viewport is where the map is centred.
type Viewport struct {
	Center model.Coordinate `json:"center"`
	Zoom   int              `json:"zoom"`
}

// Counts summarizes fetched and rendered results.
type Counts struct {
	Spots         int `json:"spots"`
	Signs         int `json:"signs"`
	RenderedSpots int `json:"renderedSpots"`
	RenderedSigns int `json:"renderedSigns"`
}

// ViewState is a point-in-time copy of a map view.
type ViewState struct {
	ID            string         `json:"id"`
	Config        ViewConfig     `json:"config"`
	Ready         bool           `json:"ready"`
	Searching     bool           `json:"searching"`
	Limit         int            `json:"limit"`
	Hidden        []MarkerClass  `json:"hidden"`
	Markers       []Marker       `json:"markers"`
	Popup         *Popup         `json:"popup,omitempty"`
	Viewport      Viewport       `json:"viewport"`
	Counts        Counts         `json:"counts"`
	SessionID     string         `json:"sessionId,omitempty"`
	Notifications []Notification `json:"notifications"`
}

// MapView is one map screen: fetched results, the marker registry derived from them,
// and the popup/viewport state. Markers are always rebuilt from scratch.
type MapView struct {
	id       string
	clientID string
	userID   string
	cfg      ViewConfig

	platform Platform
	searcher Searcher
	prefs    preferences.Store
	stats    StatRecorder
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu            sync.Mutex
	ready         bool
	spots         []model.PublicParkingSpot
	signs         []model.ParkingSign
	sessionID     string
	limit         int
	hidden        map[MarkerClass]bool
	markers       []Marker
	transient     *Marker
	popup         *Popup
	viewport      Viewport
	notifications []Notification
	seq           uint64
	lastActive    time.Time
}

func (v *MapView) ID() string { return v.id }

// Init loads the maps platform and the stored result limit. On failure the view
// stays non-functional and a notification is queued.
func (v *MapView) Init(ctx context.Context) error {
	if v.prefs != nil && v.clientID != "" {
		n, ok, err := v.prefs.GetSpotsLimit(ctx, v.clientID)
		if err != nil {
			v.log.Warn().Err(err).Msg("load stored spots limit")
		} else if ok {
			v.mu.Lock()
			v.limit = preferences.ClampSpotsLimit(n, v.cfg.SpotsLimitMax)
			v.mu.Unlock()
		}
	}

	if err := v.platform.Load(ctx); err != nil {
		v.log.Error().Err(err).Msg("map platform failed to load")
		v.mu.Lock()
		v.notifyLocked(MsgPlatformFailed)
		v.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPlatformNotReady, err)
	}
	v.mu.Lock()
	v.ready = true
	v.mu.Unlock()
	return nil
}

// SearchAt queries parking around a coordinate. Backend failures become a
// notification and leave the markers untouched; only precondition failures are
// returned.
func (v *MapView) SearchAt(ctx context.Context, lat, lng float64) error {
	at := model.Coordinate{Lat: lat, Lng: lng}
	if err := at.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	if !v.ready {
		v.mu.Unlock()
		return ErrPlatformNotReady
	}
	v.seq++
	seq := v.seq
	v.transient = searchingMarker(at)
	v.lastActive = v.now()
	v.mu.Unlock()

	res, err := v.searcher.SearchParking(ctx, lat, lng)

	v.mu.Lock()
	if seq != v.seq {
		latest := v.seq
		v.mu.Unlock()
		v.log.Debug().Uint64("seq", seq).Uint64("latest", latest).Msg("discarding stale search response")
		v.observe("stale")
		if v.metrics != nil {
			v.metrics.StaleResponses.WithLabelValues("map").Inc()
		}
		return nil
	}
	v.transient = nil
	if err != nil {
		v.notifyLocked(MsgSearchFailed)
		v.mu.Unlock()
		v.log.Warn().Err(err).Float64("lat", lat).Float64("lng", lng).Msg("parking search failed")
		v.observe("error")
		return nil
	}

	v.spots = capSpots(res.PublicParkingResults, v.cfg.SpotsLimitMax)
	v.signs = capSigns(res.ParkingSignResults, v.cfg.SpotsLimitMax)
	v.sessionID = res.SessionID
	v.popup = nil
	v.renderLocked()
	v.viewport.Center = at
	v.mu.Unlock()

	v.observe("ok")
	v.recordStat(ctx, model.StatLocationsSearched)
	return nil
}

// SetLimit changes the result-count limit, clamped to [1, SpotsLimitMax]. Already
// fetched results are re-truncated without a new search. It returns the applied limit.
func (v *MapView) SetLimit(ctx context.Context, n int) int {
	v.mu.Lock()
	v.limit = preferences.ClampSpotsLimit(n, v.cfg.SpotsLimitMax)
	limit := v.limit
	v.renderLocked()
	v.lastActive = v.now()
	v.mu.Unlock()

	if v.prefs != nil && v.clientID != "" {
		if err := v.prefs.SetSpotsLimit(ctx, v.clientID, limit); err != nil {
			v.log.Warn().Err(err).Msg("persist spots limit")
		}
	}
	return limit
}

// SetClassVisible hides or shows one marker class. Hidden data is kept.
func (v *MapView) SetClassVisible(class MarkerClass, visible bool) error {
	if !v.cfg.classEnabled(class) {
		return fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if visible {
		delete(v.hidden, class)
	} else {
		v.hidden[class] = true
	}
	v.renderLocked()
	v.lastActive = v.now()
	return nil
}

// Markers returns the rendered markers, including a transient searching marker.
func (v *MapView) Markers() []Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markersLocked()
}

func (v *MapView) markersLocked() []Marker {
	out := make([]Marker, 0, len(v.markers)+1)
	out = append(out, v.markers...)
	if v.transient != nil {
		out = append(out, *v.transient)
	}
	return out
}

// OpenPopup opens the detail popup for a rendered marker.
func (v *MapView) OpenPopup(markerID string) (Popup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, err := v.popupLocked(markerID)
	if err != nil {
		return Popup{}, err
	}
	v.popup = &p
	v.lastActive = v.now()
	return p, nil
}

func (v *MapView) popupLocked(markerID string) (Popup, error) {
	for _, m := range v.markers {
		if m.ID != markerID {
			continue
		}
		var i int
		switch m.Class {
		case ClassSpots:
			if _, err := fmt.Sscanf(markerID, "spot-%d", &i); err == nil && i < len(v.spots) {
				return spotPopup(markerID, v.spots[i]), nil
			}
		case ClassSigns:
			if _, err := fmt.Sscanf(markerID, "sign-%d", &i); err == nil && i < len(v.signs) {
				return signPopup(markerID, v.signs[i]), nil
			}
		}
	}
	return Popup{}, fmt.Errorf("%w: %s", ErrUnknownMarker, markerID)
}

func (v *MapView) ClosePopup() {
	v.mu.Lock()
	v.popup = nil
	v.mu.Unlock()
}

// FindParkingHere closes the popup and searches around a spot marker.
func (v *MapView) FindParkingHere(ctx context.Context, markerID string) error {
	v.mu.Lock()
	var target *model.Coordinate
	for _, m := range v.markers {
		if m.ID == markerID && m.Class == ClassSpots {
			pos := m.Position
			target = &pos
			break
		}
	}
	if target == nil {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownMarker, markerID)
	}
	v.popup = nil
	v.mu.Unlock()
	return v.SearchAt(ctx, target.Lat, target.Lng)
}

// OpenPlacePopup resolves a clicked map place and opens its detail popup.
func (v *MapView) OpenPlacePopup(ctx context.Context, placeID string) (Popup, error) {
	if !v.isReady() {
		return Popup{}, ErrPlatformNotReady
	}
	place, err := v.platform.PlaceDetails(ctx, placeID)
	if errors.Is(err, maps.ErrPlaceNotFound) {
		return Popup{}, fmt.Errorf("%w: %s", ErrUnknownPlace, placeID)
	}
	if err != nil {
		return Popup{}, fmt.Errorf("place details %s: %w", placeID, err)
	}
	if place.PlaceID == "" {
		place.PlaceID = placeID
	}
	p := placePopup(place)

	v.mu.Lock()
	v.popup = &p
	v.lastActive = v.now()
	v.mu.Unlock()
	return p, nil
}

// FindParkingAtPlace closes the open place popup and searches around the place.
func (v *MapView) FindParkingAtPlace(ctx context.Context, placeID string) error {
	v.mu.Lock()
	if v.popup == nil || v.popup.PlaceID != placeID || v.popup.Position == nil {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPlace, placeID)
	}
	target := *v.popup.Position
	v.popup = nil
	v.mu.Unlock()
	return v.SearchAt(ctx, target.Lat, target.Lng)
}

// Autocomplete returns place predictions whose description contains the view's
// locality, at most MaxPredictions of them.
func (v *MapView) Autocomplete(ctx context.Context, input string) ([]maps.Prediction, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []maps.Prediction{}, nil
	}
	if !v.isReady() {
		return nil, ErrPlatformNotReady
	}
	preds, err := v.platform.Autocomplete(ctx, input)
	if err != nil {
		v.log.Warn().Err(err).Msg("autocomplete failed")
		return []maps.Prediction{}, nil
	}
	return filterPredictions(preds, v.cfg.Locality, v.cfg.MaxPredictions), nil
}

func filterPredictions(preds []maps.Prediction, locality string, max int) []maps.Prediction {
	out := make([]maps.Prediction, 0, max)
	for _, p := range preds {
		if len(out) == max {
			break
		}
		if strings.Contains(strings.ToLower(p.Description), locality) {
			out = append(out, p)
		}
	}
	return out
}

// SelectPrediction resolves a prediction to coordinates and searches there. A place
// without geometry is ignored.
func (v *MapView) SelectPrediction(ctx context.Context, placeID string) error {
	if !v.isReady() {
		return ErrPlatformNotReady
	}
	place, err := v.platform.PlaceDetails(ctx, placeID)
	if errors.Is(err, maps.ErrPlaceNotFound) {
		return nil
	}
	if err != nil {
		v.log.Warn().Err(err).Str("place_id", placeID).Msg("place details failed")
		v.mu.Lock()
		v.notifyLocked(MsgSearchFailed)
		v.mu.Unlock()
		return nil
	}
	return v.SearchAt(ctx, place.Lat, place.Lng)
}

// State returns a copy of the view. With drain, queued notifications are cleared.
func (v *MapView) State(drain bool) ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()

	hidden := make([]MarkerClass, 0, len(v.hidden))
	for _, c := range v.cfg.EnabledMarkerClasses {
		if v.hidden[c] {
			hidden = append(hidden, c)
		}
	}
	counts := Counts{Spots: len(v.spots), Signs: len(v.signs)}
	for _, m := range v.markers {
		switch m.Class {
		case ClassSpots:
			counts.RenderedSpots++
		case ClassSigns:
			counts.RenderedSigns++
		}
	}
	notes := append([]Notification(nil), v.notifications...)
	if notes == nil {
		notes = []Notification{}
	}
	if drain {
		v.notifications = nil
	}
	var popup *Popup
	if v.popup != nil {
		p := *v.popup
		popup = &p
	}
	return ViewState{
		ID:            v.id,
		Config:        v.cfg,
		Ready:         v.ready,
		Searching:     v.transient != nil,
		Limit:         v.limit,
		Hidden:        hidden,
		Markers:       v.markersLocked(),
		Popup:         popup,
		Viewport:      v.viewport,
		Counts:        counts,
		SessionID:     v.sessionID,
		Notifications: notes,
	}
}

// renderLocked clears the marker registry and recreates it from the fetched results.
func (v *MapView) renderLocked() {
	v.markers = v.markers[:0]
	if v.cfg.classEnabled(ClassSpots) && !v.hidden[ClassSpots] {
		for i, s := range v.spots[:min(v.limit, len(v.spots))] {
			v.markers = append(v.markers, spotMarker(i, s))
		}
	}
	if v.cfg.classEnabled(ClassSigns) && !v.hidden[ClassSigns] {
		for i, s := range v.signs[:min(v.limit, len(v.signs))] {
			v.markers = append(v.markers, signMarker(i, s))
		}
	}
	if v.popup != nil && v.popup.MarkerID != "" {
		if _, err := v.popupLocked(v.popup.MarkerID); err != nil {
			v.popup = nil
		}
	}
}

func (v *MapView) notifyLocked(msg string) {
	v.notifications = append(v.notifications, Notification{Level: "error", Message: msg, At: v.now()})
	if len(v.notifications) > maxNotifications {
		v.notifications = v.notifications[len(v.notifications)-maxNotifications:]
	}
}

func (v *MapView) isReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

func (v *MapView) lastUsed() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastActive
}

func (v *MapView) observe(outcome string) {
	if v.metrics != nil {
		v.metrics.Searches.WithLabelValues(outcome).Inc()
	}
}

func (v *MapView) recordStat(ctx context.Context, stat model.StatName) {
	if v.stats == nil || v.userID == "" {
		return
	}
	if err := v.stats.IncrementUserStat(ctx, v.userID, stat); err != nil {
		v.log.Warn().Err(err).Str("stat", string(stat)).Msg("stat increment failed")
		return
	}
	if v.metrics != nil {
		v.metrics.StatIncrements.WithLabelValues(string(stat)).Inc()
	}
}

func capSpots(in []model.PublicParkingSpot, max int) []model.PublicParkingSpot {
	if len(in) > max {
		in = in[:max]
	}
	return append([]model.PublicParkingSpot(nil), in...)
}

func capSigns(in []model.ParkingSign, max int) []model.ParkingSign {
	if len(in) > max {
		in = in[:max]
	}
	return append([]model.ParkingSign(nil), in...)
}
