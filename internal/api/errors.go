package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is returned for every non-2xx response.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// StatusCode extracts the HTTP status from err, or 0 when err did not come
// from a backend response.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Detail returns the backend-provided message carried by err, or fallback.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" && !apiErr.generic() {
		return apiErr.Detail
	}
	return fallback
}

func (e *Error) generic() bool {
	return e.Detail == genericDetail(e.StatusCode)
}

// ValidationError reports a request rejected before any network I/O.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "api: invalid request: " + strings.Join(parts, ", ")
}

// SaveError wraps a failed POST /songs/.
type SaveError struct {
	Detail string
	Err    error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("api: save song failed: %s", e.Detail)
}

func (e *SaveError) Unwrap() error { return e.Err }

type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// decodeError builds an *Error from a failed response body. DRF validation
// errors ({"field": ["message"]}) are flattened into "field: message".
func decodeError(method, path string, status int, body []byte) *Error {
	e := &Error{Method: method, Path: path, StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case strings.TrimSpace(eb.Detail) != "":
			e.Detail = strings.TrimSpace(eb.Detail)
		case strings.TrimSpace(eb.Error) != "":
			e.Detail = strings.TrimSpace(eb.Error)
		}
	}
	if e.Detail == "" {
		e.Detail = fieldErrors(body)
	}
	if e.Detail == "" {
		e.Detail = genericDetail(status)
	}
	return e
}

func fieldErrors(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		var msgs []string
		if err := json.Unmarshal(fields[k], &msgs); err != nil {
			var single string
			if err := json.Unmarshal(fields[k], &single); err != nil {
				continue
			}
			msgs = []string{single}
		}
		if len(msgs) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(msgs, " ")))
	}
	return strings.Join(parts, "; ")
}

func genericDetail(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("request failed with status %d", status)
	}
	return fmt.Sprintf("request failed with status %d (%s)", status, strings.ToLower(text))
}
