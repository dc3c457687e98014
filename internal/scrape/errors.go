package scrape

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrWaitTimeout     = errors.New("wait timed out")
	// ErrLoginFailed and ErrOTPFailed are terminal: the session cannot
	// continue unauthenticated.
	ErrLoginFailed = errors.New("login failed")
	ErrOTPFailed   = errors.New("otp verification failed")
	// ErrZeroResults is only returned when the zero-results policy is abort.
	ErrZeroResults = errors.New("search returned no results")
)

// NotFoundError is returned when no candidate selector matched in time.
type NotFoundError struct {
	Selector string
	Timeout  time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("element %q not found within %s", e.Selector, e.Timeout)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrElementNotFound }
