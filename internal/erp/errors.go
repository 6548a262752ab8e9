package erp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoSession is returned when an operation needs a logged-in session and
// none is active.
var ErrNoSession = errors.New("erp: not logged in")

// ZoneLookupError means the ERP could not map an account code to an API zone.
type ZoneLookupError struct {
	AccountCode string
	Message     string
}

func (e *ZoneLookupError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("erp: no zone for account %q", e.AccountCode)
	}
	return fmt.Sprintf("erp: zone lookup for account %q failed: %s", e.AccountCode, e.Message)
}

// AuthError means login was rejected or the session is no longer valid.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("erp: authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("erp: authentication failed (%s): %s", e.Code, e.Message)
}

// RateLimitError means a product sync was attempted before the minimum
// interval since the previous sync elapsed. No request was sent.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("erp: product sync throttled, retry in %s", e.Wait.Round(time.Second))
}

// APIError carries an error response from the ERP, including any per-line
// failure details from a sale submission.
type APIError struct {
	Code    string
	Message string
	Details []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request rejected"
	}
	if e.Code != "" {
		msg = fmt.Sprintf("(%s) %s", e.Code, msg)
	}
	if len(e.Details) > 0 {
		msg = msg + ": " + strings.Join(e.Details, "; ")
	}
	return "erp: " + msg
}
