package models

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SentinelCounterID is the fixed identifier of the single counter row used
// by the sentinel-counter schema. Every client reads and writes this row.
const SentinelCounterID = "page"

// ViewCounter represents the sentinel counter row holding the running total.
type ViewCounter struct {
	// ID is the well-known identifier of the counter row.
	ID string
	// ViewCount is the running total of recorded visits. It never decreases.
	ViewCount int64
	// CreatedAt is the timestamp indicating when the counter row was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the counter was last incremented.
	UpdatedAt time.Time
}

const sessionIDLength = 21

// NewSessionID generates an opaque identifier for one page session.
// A session lives from page load to navigation away; a refresh mints a new one.
func NewSessionID() (string, error) {
	return gonanoid.New(sessionIDLength)
}
