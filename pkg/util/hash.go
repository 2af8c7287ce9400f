package util

import (
	"crypto/md5"
	"encoding/hex"
)

// HashString returns the MD5 hex digest of input exactly as given, used to derive
// fixed-length cache keys from caller-supplied identifiers. Callers that want
// case- or whitespace-insensitive keys must normalize first.
func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
