package search

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/maps"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/util"
)

// MarkerLabel is the chip drawn as a marker's content.
type MarkerLabel struct {
	Text       string `json:"text"`
	Background string `json:"background"`
	Color      string `json:"color"`
	CSSClass   string `json:"cssClass"`
}

var (
	spotLabel      = MarkerLabel{Text: "P", Background: "#16a34a", Color: "black", CSSClass: "cph-marker cph-marker-spot"}
	signLabel      = MarkerLabel{Text: "S", Background: "#dc2626", Color: "white", CSSClass: "cph-marker cph-marker-sign"}
	searchingLabel = MarkerLabel{Text: "…", Background: "#2563eb", Color: "white", CSSClass: "cph-marker cph-marker-searching"}
)

// Marker is the description of one map annotation. Clients draw it verbatim.
type Marker struct {
	ID        string           `json:"id"`
	Class     MarkerClass      `json:"class,omitempty"`
	Position  model.Coordinate `json:"position"`
	Title     string           `json:"title"`
	Label     MarkerLabel      `json:"label"`
	Transient bool             `json:"transient,omitempty"`
}

// Popup is the detail card for a clicked marker or map place. Place popups carry
// PlaceID and the resolved Position instead of a MarkerID.
type Popup struct {
	MarkerID      string            `json:"markerId,omitempty"`
	PlaceID       string            `json:"placeId,omitempty"`
	Position      *model.Coordinate `json:"position,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	GoogleMapsURL string            `json:"googleMapsUrl"`
	AppleMapsURL  string            `json:"appleMapsUrl"`
	FindParking   bool              `json:"findParking"`
}

func spotMarker(i int, s model.PublicParkingSpot) Marker {
	return Marker{
		ID:       fmt.Sprintf("spot-%d", i),
		Class:    ClassSpots,
		Position: model.Coordinate{Lat: s.Lat, Lng: s.Lng},
		Title:    "Public Parking",
		Label:    spotLabel,
	}
}

func signMarker(i int, s model.ParkingSign) Marker {
	return Marker{
		ID:       fmt.Sprintf("sign-%d", i),
		Class:    ClassSigns,
		Position: model.Coordinate{Lat: s.Lat, Lng: s.Lng},
		Title:    signTitle(s),
		Label:    signLabel,
	}
}

func searchingMarker(c model.Coordinate) *Marker {
	return &Marker{ID: "searching", Position: c, Title: "Searching...", Label: searchingLabel, Transient: true}
}

func signTitle(s model.ParkingSign) string {
	if s.Category == "" {
		return "Parking Sign"
	}
	return "Parking Sign: " + s.Category
}

func spotPopup(markerID string, s model.PublicParkingSpot) Popup {
	query := util.DescribeLocation(s.Address, s.Lat, s.Lng)
	title := "Public Parking"
	if name := strings.TrimSpace(s.Name); name != "" {
		title = name
	}
	return Popup{
		MarkerID:      markerID,
		Title:         title,
		Description:   query,
		GoogleMapsURL: googleMapsURL(query),
		AppleMapsURL:  appleMapsURL(query),
		FindParking:   true,
	}
}

func signPopup(markerID string, s model.ParkingSign) Popup {
	query := util.DescribeLocation(nil, s.Lat, s.Lng)
	desc := query
	for _, v := range []*string{s.Description, s.Rules, s.Text} {
		if v != nil && strings.TrimSpace(*v) != "" {
			desc = strings.TrimSpace(*v)
			break
		}
	}
	return Popup{
		MarkerID:      markerID,
		Title:         signTitle(s),
		Description:   desc,
		GoogleMapsURL: googleMapsURL(query),
		AppleMapsURL:  appleMapsURL(query),
	}
}

func placePopup(p maps.Place) Popup {
	query := util.CleanAddress(p.Address)
	if query == "" {
		query = strings.TrimSpace(p.Name)
	}
	title := "Location"
	if name := strings.TrimSpace(p.Name); name != "" {
		title = name
	}
	return Popup{
		PlaceID:       p.PlaceID,
		Position:      &model.Coordinate{Lat: p.Lat, Lng: p.Lng},
		Title:         title,
		Description:   query,
		GoogleMapsURL: googleMapsURL(query),
		AppleMapsURL:  appleMapsURL(query),
		FindParking:   true,
	}
}

func googleMapsURL(query string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + encodeComponent(query)
}

func appleMapsURL(query string) string {
	return "https://maps.apple.com/?q=" + encodeComponent(query)
}

// encodeComponent percent-encodes like a browser's encodeURIComponent.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

var (
	stylesheetOnce sync.Once
	stylesheet     string
)

// MarkerStylesheet returns the CSS for marker chips. It is built once per process.
func MarkerStylesheet() string {
	stylesheetOnce.Do(func() {
		var b strings.Builder
		b.WriteString(".cph-marker{padding:4px 8px;border-radius:9999px;font-size:12px;font-weight:bold;pointer-events:none}\n")
		for _, l := range []MarkerLabel{spotLabel, signLabel, searchingLabel} {
			class := l.CSSClass[strings.LastIndex(l.CSSClass, " ")+1:]
			fmt.Fprintf(&b, ".%s{background:%s;color:%s}\n", class, l.Background, l.Color)
		}
		b.WriteString(".cph-marker-searching{animation:cph-pulse 1s ease-in-out infinite}\n")
		b.WriteString("@keyframes cph-pulse{0%{transform:scale(1);opacity:1}50%{transform:scale(1.25);opacity:.6}100%{transform:scale(1);opacity:1}}\n")
		stylesheet = b.String()
	})
	return stylesheet
}
