package listing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTransient    ErrorKind = "transient"
)

// FetchError is the failure type returned by Client implementations.
type FetchError struct {
	Kind       ErrorKind
	Source     string
	StatusCode int

	// RateWindow is set when the failing response still carried rate
	// metadata (notably on 429s).
	RateWindow *RateWindow

	Err error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
	}

	return fmt.Sprintf("fetch %s: %s (status %d)", e.Source, e.Kind, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError unwraps err into a *FetchError if possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}

	return nil, false
}

// Kind returns the classification of err, or KindTransient for errors that
// did not originate from a Client.
func Kind(err error) ErrorKind {
	if fe, ok := AsFetchError(err); ok {
		return fe.Kind
	}

	return KindTransient
}
