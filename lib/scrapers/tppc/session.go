package tppc

import (
	"context"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
)

type Credentials struct {
	Username string
	Password string
}

// CredentialsFromEnv reads the account from TPPC_USERNAME and
// TPPC_PASSWORD. absence is a configuration problem, detected here
// before any network call is attempted.
func CredentialsFromEnv() (Credentials, error) {
	username := os.Getenv("TPPC_USERNAME")
	password := os.Getenv("TPPC_PASSWORD")
	if username == "" || password == "" {
		return Credentials{}, ErrNotConfigured
	}
	return Credentials{Username: username, Password: password}, nil
}

// session tracks whether the jar is believed to hold a live login.
// the validity window is a heuristic to skip pointless re-logins, the
// redirect-retry path in the client is the actual correctness backstop.
type session struct {
	mu              sync.Mutex
	valid           bool
	authenticatedAt time.Time
}

func (s *session) freshWithin(now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid && now.Sub(s.authenticatedAt) < window
}

func (s *session) markValid(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = true
	s.authenticatedAt = now
}

func (s *session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
}

// Login performs the credential exchange through the request queue.
// with force unset it returns immediately when the session was
// authenticated within the revalidation window.
func (c *Client) Login(ctx context.Context, force bool) error {
	var err error
	qerr := c.queue.Do(ctx, func() {
		err = c.loginLocked(ctx, force)
	})
	if qerr != nil {
		return qerr
	}
	return err
}

// loginLocked must only run while holding the serializer slot.
func (c *Client) loginLocked(ctx context.Context, force bool) error {
	if !force && c.sess.freshWithin(c.now(), c.revalidateWindow) {
		return nil
	}

	ctx, span := tracer.Start(ctx, "client:login")
	defer span.End()

	values := url.Values{
		"Login":    {c.creds.Username},
		"Password": {c.creds.Password},
	}
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Cookie", c.jar.Header()).
		SetBody(values.Encode()).
		Post(c.loginPath)
	if err != nil {
		c.sess.invalidate()
		span.SetStatus(codes.Error, "login exchange failed")
		return &TransportError{Err: err}
	}
	// a failed login may still set cookies that matter on the retry
	c.jar.UpdateFrom(res.RawResponse.Cookies())

	body := res.String()
	if redirect := res.StatusCode() >= 300 && res.StatusCode() < 400; redirect {
		// some login flows bounce to the home page on success, the
		// marker check has to run against the landing page body
		location := res.Header().Get("Location")
		if location == "" {
			c.sess.invalidate()
			span.SetStatus(codes.Error, "login redirect without location")
			return &FetchError{Endpoint: c.loginPath, StatusCode: res.StatusCode(), Reason: "redirect without location"}
		}
		landing, err := c.Http.R().
			SetContext(ctx).
			SetHeader("Cookie", c.jar.Header()).
			Get(location)
		if err != nil {
			c.sess.invalidate()
			span.SetStatus(codes.Error, "login landing page failed")
			return &TransportError{Err: err}
		}
		c.jar.UpdateFrom(landing.RawResponse.Cookies())
		res = landing
		body = landing.String()
	}

	if !res.IsSuccess() {
		c.sess.invalidate()
		span.SetStatus(codes.Error, "login returned unexpected status")
		return &TransportError{Err: &FetchError{
			Endpoint:   c.loginPath,
			StatusCode: res.StatusCode(),
		}}
	}
	if !strings.Contains(body, c.loggedInMarker) {
		c.sess.invalidate()
		span.SetStatus(codes.Error, ErrInvalidCredentials.Error())
		return ErrInvalidCredentials
	}

	c.sess.markValid(c.now())
	return nil
}

func isLoginLocation(location, loginPath string) bool {
	parsed, err := url.Parse(location)
	if err != nil {
		return strings.Contains(location, loginPath)
	}
	return parsed.Path == loginPath
}
