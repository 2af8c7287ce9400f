package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrMalformedDocument marks a stored document that does not decode into a valid record.
var ErrMalformedDocument = errors.New("malformed document")

// ErrInvalidCoordinates is returned when a latitude/longitude pair is missing or out of range.
var ErrInvalidCoordinates = errors.New("lat/lng must be finite numbers within range")

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

// Validate rejects NaN/Inf and out-of-range values.
func (c Coordinate) Validate() error {
	if !finite(c.Lat) || !finite(c.Lng) || c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, c.Lat, c.Lng)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// EntrySource records how a parking location was captured.
type EntrySource string

const (
	SourcePOI    EntrySource = "poi"
	SourceGPS    EntrySource = "gps"
	SourceManual EntrySource = "manual"
	// SourceSearch is accepted on input and stored as SourceManual.
	SourceSearch EntrySource = "search"
)

// Normalize maps aliases onto their stored form. Unknown values are returned as-is.
func (s EntrySource) Normalize() EntrySource {
	if s == SourceSearch {
		return SourceManual
	}
	return s
}

func (s EntrySource) Valid() bool {
	switch s.Normalize() {
	case SourcePOI, SourceGPS, SourceManual:
		return true
	}
	return false
}

// ParkingEntry is one "parked here" event under users/{uid}/history.
type ParkingEntry struct {
	ID         string      `json:"id" firestore:"-"`
	Lat        float64     `json:"lat" firestore:"lat"`
	Lng        float64     `json:"lng" firestore:"lng"`
	Address    *string     `json:"address,omitempty" firestore:"address"`
	SavedAtISO string      `json:"savedAtISO" firestore:"savedAtISO"`
	Source     EntrySource `json:"source" firestore:"source"`
	Note       *string     `json:"note,omitempty" firestore:"note"`
	PhotoURL   *string     `json:"photoUrl,omitempty" firestore:"photoUrl"`
	CreatedAt  time.Time   `json:"-" firestore:"createdAt,serverTimestamp"`
}

func (e ParkingEntry) Validate() error {
	if err := (Coordinate{Lat: e.Lat, Lng: e.Lng}).Validate(); err != nil {
		return err
	}
	if !e.Source.Valid() {
		return fmt.Errorf("unknown parking source %q", e.Source)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.SavedAtISO); err != nil {
		return fmt.Errorf("savedAtISO %q: %w", e.SavedAtISO, err)
	}
	return nil
}

// ParkingEntryInput is what a caller supplies when saving a location.
type ParkingEntryInput struct {
	Lat     *float64    `json:"lat"`
	Lng     *float64    `json:"lng"`
	Address *string     `json:"address,omitempty"`
	Source  EntrySource `json:"source"`
	Note    *string     `json:"note,omitempty"`
}

func (in ParkingEntryInput) Validate() error {
	if in.Lat == nil || in.Lng == nil {
		return fmt.Errorf("%w: lat and lng are required", ErrInvalidCoordinates)
	}
	if err := (Coordinate{Lat: *in.Lat, Lng: *in.Lng}).Validate(); err != nil {
		return err
	}
	if !in.Source.Valid() {
		return fmt.Errorf("unknown parking source %q", in.Source)
	}
	return nil
}

// ParkedDenorm is the copy of an entry's key fields kept on the pointer document.
type ParkedDenorm struct {
	Lat        float64 `json:"lat" firestore:"lat"`
	Lng        float64 `json:"lng" firestore:"lng"`
	Address    *string `json:"address,omitempty" firestore:"address"`
	SavedAtISO string  `json:"savedAtISO" firestore:"savedAtISO"`
}

// LastParkedPointer is the users/{uid}/lastParked/current singleton.
// A cleared pointer has nil EntryID, EntryPath and Denorm.
type LastParkedPointer struct {
	EntryID      *string       `json:"entryId" firestore:"entryId"`
	EntryPath    *string       `json:"entryPath" firestore:"entryPath"`
	Denorm       *ParkedDenorm `json:"denorm" firestore:"denorm"`
	UpdatedAtISO string        `json:"updatedAtISO" firestore:"updatedAtISO"`
}

// Cleared reports whether the pointer references no entry.
func (p LastParkedPointer) Cleared() bool {
	return p.EntryID == nil || *p.EntryID == ""
}

func (p LastParkedPointer) Validate() error {
	if p.Cleared() {
		return nil
	}
	if p.Denorm == nil {
		return errors.New("pointer references an entry but has no denorm block")
	}
	if p.EntryPath == nil || !strings.HasSuffix(*p.EntryPath, "/"+*p.EntryID) {
		return errors.New("pointer entryPath does not match entryId")
	}
	return (Coordinate{Lat: p.Denorm.Lat, Lng: p.Denorm.Lng}).Validate()
}

// LastParked is the resolved form of the pointer, optionally with the referenced entry.
type LastParked struct {
	Pointer LastParkedPointer `json:"pointer"`
	History *ParkingEntry     `json:"history"`
}

// UserStats are monotonically increasing usage counters.
type UserStats struct {
	SignsAnalyzed     int64 `json:"signsAnalyzed" firestore:"signsAnalyzed"`
	LocationsSearched int64 `json:"locationsSearched" firestore:"locationsSearched"`
	PinsCreated       int64 `json:"pinsCreated" firestore:"pinsCreated"`
	TicketsReported   int64 `json:"ticketsReported" firestore:"ticketsReported"`
}

// StatName is one of the four allowed counter names.
type StatName string

const (
	StatSignsAnalyzed     StatName = "signsAnalyzed"
	StatLocationsSearched StatName = "locationsSearched"
	StatPinsCreated       StatName = "pinsCreated"
	StatTicketsReported   StatName = "ticketsReported"
)

func (s StatName) Valid() bool {
	switch s {
	case StatSignsAnalyzed, StatLocationsSearched, StatPinsCreated, StatTicketsReported:
		return true
	}
	return false
}

// Preferences is the preferences sub-document of a profile.
type Preferences struct {
	Notifications bool `json:"notifications" firestore:"notifications"`
	DarkMode      bool `json:"darkMode" firestore:"darkMode"`
	EmailUpdates  bool `json:"emailUpdates" firestore:"emailUpdates"`
	SpotsLimit    int  `json:"spotsLimit" firestore:"spotsLimit"`
}

// DefaultPreferences are written for a newly created profile.
func DefaultPreferences() Preferences {
	return Preferences{Notifications: true, DarkMode: false, EmailUpdates: true, SpotsLimit: 10}
}

// PreferencesPatch carries a partial preferences update; nil fields are left untouched.
type PreferencesPatch struct {
	Notifications *bool `json:"notifications,omitempty"`
	DarkMode      *bool `json:"darkMode,omitempty"`
	EmailUpdates  *bool `json:"emailUpdates,omitempty"`
	SpotsLimit    *int  `json:"spotsLimit,omitempty"`
}

// Fields returns the set fields keyed by their stored names.
func (p PreferencesPatch) Fields() map[string]interface{} {
	out := make(map[string]interface{})
	if p.Notifications != nil {
		out["notifications"] = *p.Notifications
	}
	if p.DarkMode != nil {
		out["darkMode"] = *p.DarkMode
	}
	if p.EmailUpdates != nil {
		out["emailUpdates"] = *p.EmailUpdates
	}
	if p.SpotsLimit != nil {
		out["spotsLimit"] = *p.SpotsLimit
	}
	return out
}

// UserProfile is the users/{uid} document.
type UserProfile struct {
	ID          string      `json:"id" firestore:"-"`
	ClerkID     string      `json:"clerkId" firestore:"clerkId"`
	Email       *string     `json:"email" firestore:"email"`
	FirstName   *string     `json:"firstName" firestore:"firstName"`
	LastName    *string     `json:"lastName" firestore:"lastName"`
	FullName    *string     `json:"fullName" firestore:"fullName"`
	ImageURL    *string     `json:"imageUrl" firestore:"imageUrl"`
	CreatedAt   time.Time   `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt" firestore:"updatedAt"`
	LastSeen    time.Time   `json:"lastSeen" firestore:"lastSeen"`
	Stats       UserStats   `json:"stats" firestore:"stats"`
	Preferences Preferences `json:"preferences" firestore:"preferences"`
}

func (u UserProfile) Validate() error {
	if u.ClerkID == "" {
		return errors.New("profile has no clerkId")
	}
	s := u.Stats
	if s.SignsAnalyzed < 0 || s.LocationsSearched < 0 || s.PinsCreated < 0 || s.TicketsReported < 0 {
		return errors.New("profile stats must be non-negative")
	}
	return nil
}

// IdentityUser is the subset of the identity provider's user object that is synced.
type IdentityUser struct {
	ID             string   `json:"id"`
	EmailAddresses []string `json:"emailAddresses"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	FullName       string   `json:"fullName"`
	ImageURL       string   `json:"imageUrl"`
}

// ParkingTicket is a user-reported ticket under parkingTickets/{id}.
type ParkingTicket struct {
	ID        string     `json:"id" firestore:"-"`
	UserID    string     `json:"userId" firestore:"userId"`
	Title     string     `json:"title" firestore:"title"`
	Notes     string     `json:"notes" firestore:"notes"`
	Location  Coordinate `json:"location" firestore:"location"`
	Paid      bool       `json:"paid" firestore:"paid"`
	PhotoURL  string     `json:"photoUrl" firestore:"photoUrl"`
	Timestamp time.Time  `json:"timestamp" firestore:"timestamp,serverTimestamp"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty" firestore:"updatedAt,omitempty"`
}

func (t ParkingTicket) Validate() error {
	if t.UserID == "" {
		return errors.New("ticket has no userId")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("ticket title is required")
	}
	return t.Location.Validate()
}

// TicketUpdate is a partial ticket update.
type TicketUpdate struct {
	Title    *string `json:"title,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Paid     *bool   `json:"paid,omitempty"`
	PhotoURL *string `json:"photoUrl,omitempty"`
}

// ParkingPin is a community-shared parking spot under parkingPins/{id}.
type ParkingPin struct {
	ID        string    `json:"id" firestore:"-"`
	UserID    string    `json:"userId" firestore:"userId"`
	Lat       float64   `json:"lat" firestore:"lat"`
	Lng       float64   `json:"lng" firestore:"lng"`
	Note      string    `json:"note,omitempty" firestore:"note"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

func (p ParkingPin) Validate() error {
	if p.UserID == "" {
		return errors.New("pin has no userId")
	}
	return (Coordinate{Lat: p.Lat, Lng: p.Lng}).Validate()
}
