// Package preferences keeps small per-client settings (currently the map result-count
// limit) across sessions.
package preferences

import (
	"context"
	"fmt"
)

// MinSpotsLimit and MaxSpotsLimit bound every stored limit.
const (
	MinSpotsLimit = 1
	MaxSpotsLimit = 20
)

// Store persists preferences keyed by an opaque client id.
type Store interface {
	// GetSpotsLimit returns the stored limit and whether one was found.
	GetSpotsLimit(ctx context.Context, clientID string) (int, bool, error)
	SetSpotsLimit(ctx context.Context, clientID string, limit int) error
}

// ClampSpotsLimit bounds n to [MinSpotsLimit, max]. A max outside
// [MinSpotsLimit, MaxSpotsLimit] is treated as MaxSpotsLimit.
func ClampSpotsLimit(n, max int) int {
	if max < MinSpotsLimit || max > MaxSpotsLimit {
		max = MaxSpotsLimit
	}
	if n < MinSpotsLimit {
		return MinSpotsLimit
	}
	if n > max {
		return max
	}
	return n
}

func checkClient(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("preferences: client id is required")
	}
	return nil
}
