package listing

import (
	"encoding/json"
	"time"
)

// Item is a single entry from an append-only listing source.
type Item struct {
	// ID is the stable unique identifier used for dedup.
	ID string `json:"id"`

	// Anchor is the opaque position marker the API accepts as a "before"
	// parameter. For Reddit-style listings this is the fullname.
	Anchor string `json:"anchor"`

	// Kind names the item type (submission, comment, modaction, ...).
	Kind string `json:"kind"`

	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`

	// Payload carries the raw source-specific body for downstream consumers.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Cursor identifies the resume point within a listing source. The zero
// value requests a full (unanchored) fetch of the newest items.
type Cursor struct {
	Before string
}

// IsZero reports whether the cursor requests an unanchored fetch.
func (c Cursor) IsZero() bool {
	return c.Before == ""
}

// RateWindow is the authoritative rate-limit snapshot attached to an API
// response. Capacity and Remaining describe the current window; ResetAt is
// when the window rolls over.
type RateWindow struct {
	Capacity  int
	Remaining int
	Used      int
	ResetAt   time.Time
}

// Page is the result of one fetch against a listing source.
type Page struct {
	// Items in chronological order, oldest first.
	Items []Item

	// Next is the cursor to use for the following fetch. When the page is
	// empty it carries the request cursor forward.
	Next Cursor

	// RateWindow is nil when the response carried no rate metadata.
	RateWindow *RateWindow
}
