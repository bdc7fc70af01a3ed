package fetcher

import (
	"errors"
	"fmt"
)

// ErrRateLimited is wrapped by a TransientError when the platform answers 429.
var ErrRateLimited = errors.New("rate limited")

// NotFoundError means the platform served a page instead of profile data,
// which happens for deleted, renamed or inaccessible accounts.
type NotFoundError struct {
	Handle    string
	Status    int
	PageTitle string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("account %q not found or inaccessible (HTTP %d)", e.Handle, e.Status)
	if e.PageTitle != "" {
		msg += fmt.Sprintf(", page title %q", e.PageTitle)
	}
	return msg
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransientError covers every failure that says nothing about whether the
// account exists: network errors, throttling, server errors, odd payloads.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient checks if an error is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
