package thingspeak

import (
	"errors"
	"fmt"
)

// ErrFetch matches every FetchError via errors.Is
var ErrFetch = errors.New("fetching telemetry")

// ErrNonNumeric indicates the channel field did not hold a finite number
var ErrNonNumeric = errors.New("field value is not a finite number")

// FetchError represents a failed read from the feed service
type FetchError struct {
	Op         string // "latest" or "window"
	StatusCode int    // 0 when no HTTP response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("thingspeak %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("thingspeak %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetch
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
