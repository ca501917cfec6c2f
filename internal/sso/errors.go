package sso

import (
	"fmt"
	"net/http"
)

// InvalidStateError indicates the callback state value did not match an
// issued, unconsumed state. The authorization attempt is dead; the user
// must restart the login flow.
type InvalidStateError struct{}

func (InvalidStateError) Error() string {
	return "authorization state invalid: missing, expired or already used"
}

func (InvalidStateError) Status() (int, string) {
	return http.StatusBadRequest, "invalid authorization state, restart login"
}

// ErrInvalidState is the comparable instance used with errors.Is.
var ErrInvalidState = InvalidStateError{}

// ExchangeFailedError indicates the provider rejected the code exchange
// or returned a malformed payload.
type ExchangeFailedError struct {
	Cause error
}

func (e ExchangeFailedError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Cause)
}

func (e ExchangeFailedError) Unwrap() error {
	return e.Cause
}

func (ExchangeFailedError) Status() (int, string) {
	return http.StatusBadGateway, "token exchange rejected by provider"
}

// AuthExpiredError indicates a refresh failed and the identity has been
// marked inactive. The user must re-authenticate to continue.
type AuthExpiredError struct {
	CharacterID int64
	Cause       error
}

func (e AuthExpiredError) Error() string {
	return fmt.Sprintf("authentication expired for character %d: %v", e.CharacterID, e.Cause)
}

func (e AuthExpiredError) Unwrap() error {
	return e.Cause
}

func (AuthExpiredError) Status() (int, string) {
	return http.StatusUnauthorized, "re-authentication required"
}
