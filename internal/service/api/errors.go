package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for errors.Is against a classified *Error.
var (
	ErrUnauthorized = errors.New("session expired, please sign in again")
	ErrForbidden    = errors.New("you do not have permission to perform this action")
	ErrServer       = errors.New("server error, try again later")
	ErrNetwork      = errors.New("connection error, check your internet")
	ErrRequest      = errors.New("request rejected")
)

// Kind classifies a failed call once, at the gateway boundary.
type Kind int

const (
	KindRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindServer
	KindNetwork
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindServer:
		return ErrServer
	case KindNetwork:
		return ErrNetwork
	default:
		return ErrRequest
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= 500:
		return KindServer
	default:
		return KindRequest
	}
}

// Error is the single error type returned by every gateway call.
type Error struct {
	Kind    Kind
	Status  int
	Method  string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.sentinel().Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Message returns the text a user should see for err: the backend's own
// message when it sent one, the kind's generic text otherwise, fallback last.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return apiErr.Kind.sentinel().Error()
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
