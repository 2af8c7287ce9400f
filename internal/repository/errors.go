package repository

import (
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnknownStat is returned for counter names outside the allow-list.
	ErrUnknownStat = errors.New("unknown user stat")
	// ErrUserRequired is returned when an operation is called without a user id.
	ErrUserRequired = errors.New("user id is required")
)

// isoLayout is the fixed-width UTC layout used for savedAtISO/updatedAtISO so that
// lexical order equals chronological order.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
