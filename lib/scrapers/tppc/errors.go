package tppc

import "fmt"

// returned before any network call when the username/password pair is
// missing entirely. distinct from InvalidCredentials so callers can
// report "not configured" instead of "rejected".
var ErrNotConfigured = fmt.Errorf("tppc credentials are not configured")

// the site answered the login exchange but the body did not carry the
// logged-in marker. not transient, do not retry automatically.
var ErrInvalidCredentials = fmt.Errorf("Incorrect username or password.")

// TransportError wraps network level failures (dial, timeout, 5xx on
// the login exchange). retryable by the caller at a later tick.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s", e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FetchError is an unrecoverable response for one logical fetch: an
// unexpected status code, a redirect without a Location header, or a
// login redirect after the single permitted re-login.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Reason     string
}

func (e *FetchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("fetch %s: status %d: %s", e.Endpoint, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("fetch %s: status %d", e.Endpoint, e.StatusCode)
}
