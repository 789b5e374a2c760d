package itemstore

import (
	"errors"
	"fmt"
	"net/http"
)

// FetchError reports a response whose status was not 2xx.
type FetchError struct {
	Op         string
	Status     int
	StatusText string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.StatusText)
}

func newFetchError(op string, res *http.Response) *FetchError {
	text := http.StatusText(res.StatusCode)
	if res.Status != "" {
		text = res.Status
		if len(text) > 4 && text[3] == ' ' {
			text = text[4:]
		}
	}
	return &FetchError{Op: op, Status: res.StatusCode, StatusText: text}
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not a FetchError.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
