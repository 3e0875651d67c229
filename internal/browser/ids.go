package browser

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newID returns n random bytes hex-encoded. Falls back to a timestamp-based
// identifier if the system entropy source fails, which must never block
// pool operation.
func newID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// NewInstanceID creates a pool instance identifier. It namespaces the
// on-disk browser profile directory and correlates log lines, so it must
// be unique across overlapping pool lifetimes on the same host.
func NewInstanceID() string {
	return newID(6)
}

// NewOperationID creates a short random token identifying one scrape
// operation. Handlers generate one per request.
func NewOperationID() string {
	return newID(4)
}

// newLeaseID creates a page lease identifier.
func newLeaseID() string {
	return newID(4)
}
