package model

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewTouchpointID returns a ULID seeded with ts. ULIDs sort lexicographically
// by timestamp and monotonically within one, so ascending-ID comparison is a
// stable tie-break for touchpoints sharing a timestamp.
func NewTouchpointID(ts time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts.UTC()), entropy).String()
}

// NewVisitorID generates a server-side visitor id for clients that sent none.
func NewVisitorID() string { return "v_" + uuid.NewString() }

// NewSessionID generates a server-side session id for clients that sent none.
func NewSessionID() string { return "s_" + uuid.NewString() }

// NewConversionID generates a conversion id.
func NewConversionID() string { return "c_" + uuid.NewString() }
