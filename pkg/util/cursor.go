package util

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCursor is returned when a continuation cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// PageCursor is the decoded form of an opaque page token.
type PageCursor struct {
	SavedAtISO string `json:"s"`
	DocID      string `json:"d"`
}

// EncodeCursor produces an opaque URL-safe token.
func EncodeCursor(c PageCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*PageCursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c PageCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.SavedAtISO == "" || c.DocID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}
