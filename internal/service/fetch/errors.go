package fetch

import (
	"errors"
	"fmt"

	xhttp "MarketEngine/pkg/http"
)

// FetchError is returned once a URL could not be fetched.
type FetchError struct {
	URL      string
	Status   int // last HTTP status, 0 for transport errors
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func statusOf(err error) int {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
