package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"google.golang.org/api/iterator"
)

const (
	pinsCollection = "parkingPins"
	kmPerDegree    = 111.0
	maxAreaPins    = 50
)

// PinRepository manages community-shared parking pins.
type PinRepository struct {
	client *firestore.Client
	now    func() time.Time
}

func NewPinRepository(client *firestore.Client) *PinRepository {
	return &PinRepository{client: client, now: time.Now}
}

// SavePin stores a pin and bumps the author's pinsCreated counter in the same batch.
func (r *PinRepository) SavePin(ctx context.Context, p model.ParkingPin) (model.ParkingPin, error) {
	if err := p.Validate(); err != nil {
		return model.ParkingPin{}, err
	}
	ref := r.client.Collection(pinsCollection).NewDoc()
	p.ID = ref.ID
	p.CreatedAt = time.Time{}

	batch := r.client.Batch()
	batch.Set(ref, p)
	batch.Update(r.client.Collection("users").Doc(p.UserID), statIncrement(model.StatPinsCreated, r.now()))
	if _, err := batch.Commit(ctx); isNotFound(err) {
		return model.ParkingPin{}, fmt.Errorf("profile %s: %w", p.UserID, ErrNotFound)
	} else if err != nil {
		return model.ParkingPin{}, fmt.Errorf("save pin for %s: %w", p.UserID, err)
	}
	return p, nil
}

// PinsInArea returns up to 50 pins inside the bounding box of radiusKm around
// (lat, lng), newest first. The latitude band is queried and longitude filtered in
// memory.
func (r *PinRepository) PinsInArea(ctx context.Context, lat, lng, radiusKm float64) ([]model.ParkingPin, error) {
	if err := (model.Coordinate{Lat: lat, Lng: lng}).Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = 1
	}
	latDelta, lngDelta := boundingBox(lat, radiusKm)

	iter := r.client.Collection(pinsCollection).
		Where("lat", ">=", lat-latDelta).
		Where("lat", "<=", lat+latDelta).
		OrderBy("lat", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []model.ParkingPin
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate pins: %w", err)
		}
		var p model.ParkingPin
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("%w: pin %s: %v", model.ErrMalformedDocument, doc.Ref.ID, err)
		}
		p.ID = doc.Ref.ID
		if p.Validate() != nil {
			continue
		}
		if lngDistance(p.Lng, lng) <= lngDelta {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > maxAreaPins {
		out = out[:maxAreaPins]
	}
	return out, nil
}

// lngDistance is the absolute longitude difference in degrees, wrapped across
// the antimeridian into [0, 180].
func lngDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// boundingBox converts a radius into latitude/longitude half-widths in degrees.
func boundingBox(lat, radiusKm float64) (latDelta, lngDelta float64) {
	latDelta = radiusKm / kmPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 {
		return latDelta, 180
	}
	return latDelta, radiusKm / (kmPerDegree * cos)
}
