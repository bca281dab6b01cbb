package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure. Callers that only need the HTTP
// status can ignore it; callers that react to credential loss branch on it.
type ErrorKind string

const (
	// KindAuthExpired marks a 401 on a non-auth endpoint where silent renewal
	// failed or was impossible. Credentials have been cleared; the caller must
	// treat the session as logged out.
	KindAuthExpired ErrorKind = "auth-expired"

	// KindAuthRejected marks a 401 on a login or register endpoint: the
	// submitted credentials were wrong. Nothing is cleared.
	KindAuthRejected ErrorKind = "auth-rejected"

	// KindRequestRejected marks any other non-success HTTP status.
	KindRequestRejected ErrorKind = "request-rejected"

	// KindTransportFailure marks a request that never produced a response.
	// Status is 0 so callers keep a single error contract.
	KindTransportFailure ErrorKind = "transport-failure"
)

// Error is the single failure shape returned by the request pipeline,
// regardless of whether the failure originated in the transport, the backend,
// or credential renewal.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Body    any
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}

	return fmt.Sprintf("request failed (HTTP %d): %s", e.Status, e.Message)
}

// AsError unwraps err into the pipeline error shape.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}

// IsAuthExpired reports whether err means the session is no longer
// authenticated.
func IsAuthExpired(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == KindAuthExpired
}

func transportError(err error) *Error {
	return &Error{
		Kind:    KindTransportFailure,
		Status:  0,
		Message: err.Error(),
	}
}

func responseError(kind ErrorKind, status int, body any) *Error {
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: messageFromBody(body, status),
		Body:    body,
	}
}

// messageFromBody extracts a human-readable detail from a decoded error body.
// The backend uses "detail" for DRF errors, "message" in a few custom views
// and "error" for validation failures; the first present wins. Without a
// usable body the status text stands in.
func messageFromBody(body any, status int) string {
	if fields, ok := body.(map[string]any); ok {
		for _, name := range []string{"detail", "message", "error"} {
			if value, ok := fields[name].(string); ok && value != "" {
				return value
			}
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}

	return fmt.Sprintf("HTTP %d", status)
}
