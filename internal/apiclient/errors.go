package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnreachable wraps transport failures: DNS, refused connections, timeouts.
var ErrUnreachable = errors.New("backend unreachable")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsRetryable reports whether a request that failed with err may succeed if
// repeated: transport failures, 5xx and 429.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return false
}
