package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAllMirrorsFailed is returned by GetMirrored when every mirror failed.
var ErrAllMirrorsFailed = errors.New("all mirrors failed")

// ErrHTTPStatus indicates the server answered with a non-200 status.
type ErrHTTPStatus struct {
	URL  string
	Code int
}

func (e *ErrHTTPStatus) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.URL)
}

// Transient reports whether repeating the request may succeed.
func (e *ErrHTTPStatus) Transient() bool {
	switch {
	case e.Code == http.StatusTooManyRequests, e.Code == http.StatusRequestTimeout:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var st *ErrHTTPStatus
	if errors.As(err, &st) {
		return st.Code
	}
	return 0
}
