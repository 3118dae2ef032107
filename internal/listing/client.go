// Package listing defines the contract between the polling core and the
// remote paginated listing API, plus the JSON-over-HTTP implementation.
package listing

//go:generate mockgen -package mocks -destination mocks/mock_client.go github.com/streamwatch/streamwatch/internal/listing Client

import "context"

// Client fetches one page of a listing source. Implementations must bound
// the fetch with their own timeout and return *FetchError on failure;
// RateLimited errors should still carry the best-known rate window so the
// budget counter can correct its estimate even when throttled.
type Client interface {
	Fetch(ctx context.Context, source string, cursor Cursor) (*Page, error)
}
