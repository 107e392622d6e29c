package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailed    = errors.New("catalog: upstream fetch failed")
	ErrNotFound       = errors.New("catalog: item not found")
	ErrInvalidRequest = errors.New("catalog: invalid request")
)

// FetchFailedError reports a transport failure or a non-success status from
// the upstream catalog. Status is zero when no response was received.
type FetchFailedError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *FetchFailedError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("catalog: fetch %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("catalog: fetch %s: status %d", e.Endpoint, e.Status)
	default:
		return fmt.Sprintf("catalog: fetch %s: %v", e.Endpoint, e.Err)
	}
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

// InvalidRequestError names the request field that was rejected.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("catalog: invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalid(field, format string, args ...any) error {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
