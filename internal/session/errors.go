package session

import (
	"errors"
	"fmt"
)

// Login failure kinds. A *LoginError matches one of these with errors.Is.
var (
	ErrUnconfirmedLogin  = errors.New("login not confirmed")
	ErrSecurityChallenge = errors.New("security challenge required")
)

// ErrNoSession is returned when request headers are asked for before a
// login succeeded or after the session was found dead.
var ErrNoSession = errors.New("no authenticated session")

// LoginError describes a failed login attempt.
type LoginError struct {
	Kind error
	URL  string
	Err  error
}

func (e *LoginError) Error() string {
	msg := "login: " + e.Kind.Error()
	if e.URL != "" {
		msg += fmt.Sprintf(" (url %s)", e.URL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this login failure.
func (e *LoginError) Is(target error) bool {
	return target == e.Kind
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err requires manual intervention. A security
// challenge cannot be solved automatically, so monitoring must stop.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSecurityChallenge)
}
