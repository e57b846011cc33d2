package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Messages shown to callers. They are the only part of an error the UI
// layer may depend on.
const (
	msgTransport      = "network error: unable to reach the server"
	msgUnreadable     = "network error: the server response could not be read"
	msgSessionExpired = "session expired, please log in again"
)

// TransportError means the request never reached the server or the
// response could not be read. It is never retried.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthFailedError is terminal: no refresh was possible or the refresh was
// rejected. By the time a caller sees it the token store has been cleared
// and the logout event has fired.
type AuthFailedError struct {
	Message string
	Err     error
}

func (e *AuthFailedError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AuthFailedError) Unwrap() error { return e.Err }

// ApplicationError is any other non-2xx answer. Message comes from the
// response body's "message" field when there is one.
type ApplicationError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// RequestError is raised before anything is sent: an unencodable body, a
// bad path or an unreadable token store.
type RequestError struct {
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// fallbackMessage is used when an error body carries no message.
func fallbackMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("request failed with status %d (%s)", status, text)
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// Message extracts the human-readable message from any error returned by
// the client. Unknown errors fall back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		te *TransportError
		ae *AuthFailedError
		ap *ApplicationError
		re *RequestError
	)
	switch {
	case errors.As(err, &ap):
		return ap.Message
	case errors.As(err, &ae):
		return ae.Message
	case errors.As(err, &te):
		return te.Message
	case errors.As(err, &re):
		return re.Message
	}
	return err.Error()
}

// IsAuthFailed reports whether err ended the session.
func IsAuthFailed(err error) bool {
	var ae *AuthFailedError
	return errors.As(err, &ae)
}

// IsTransport reports whether err is a network/read failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by an ApplicationError, or 0.
func StatusCode(err error) int {
	var ap *ApplicationError
	if errors.As(err, &ap) {
		return ap.StatusCode
	}
	return 0
}
