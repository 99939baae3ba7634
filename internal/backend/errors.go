package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFile is returned for uploads that are not PDF, DOC, DOCX or TXT.
	ErrUnsupportedFile = errors.New("please upload a PDF, DOC, DOCX, or TXT file")
	// ErrNoResume is returned when an operation needs a resume and none exists.
	ErrNoResume = errors.New("no resume has been uploaded")
)

// APIError is a non-2xx response from the backend or the storage service.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: backend returned HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned HTTP %d: %s", e.Op, e.StatusCode, body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
