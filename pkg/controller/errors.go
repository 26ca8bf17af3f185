package controller

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when the controller rejects the session and
// the single re-authentication retry did not help.
var ErrSessionExpired = errors.New("controller session expired")

// AuthError means neither API dialect accepted the credentials.
type AuthError struct {
	UniFiOS error
	Legacy  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("controller login failed: %s: %v; %s: %v", DialectUniFiOS, e.UniFiOS, DialectLegacy, e.Legacy)
}

func (e *AuthError) Unwrap() []error {
	var out []error
	for _, err := range []error{e.UniFiOS, e.Legacy} {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// TransportError is a non-success response unrelated to authorization.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Kind classifies err for metrics and logs.
func Kind(err error) string {
	var authErr *AuthError
	var trErr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "auth"
	case errors.Is(err, ErrSessionExpired):
		return "session"
	case errors.As(err, &trErr):
		return "transport"
	default:
		return "network"
	}
}
