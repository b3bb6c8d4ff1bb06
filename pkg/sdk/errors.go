package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoContent is returned when a download yields an empty body.
	ErrNoContent = errors.New("edimap: empty response body")

	// ErrInvalidPayload is returned when a response does not have the expected shape.
	ErrInvalidPayload = errors.New("edimap: invalid response payload")

	// ErrNoSessionID is returned when an upload succeeds without issuing a session.
	ErrNoSessionID = errors.New("edimap: upload returned no session id")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("edimap: %s: %s", e.Op, http.StatusText(e.Status))
	}
	return fmt.Sprintf("edimap: %s: %s (%d)", e.Op, e.Detail, e.Status)
}

// NotFound reports whether the server did not know the session.
func (e *APIError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// parseDetail extracts FastAPI's {"detail": ...} message. The detail is a
// string for raised HTTP errors and a list of {msg} objects for validation
// errors. Anything else falls back to the trimmed body text.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &list); err == nil {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
		return string(envelope.Detail)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
