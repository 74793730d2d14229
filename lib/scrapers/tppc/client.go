package tppc

import (
	"context"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/restyutil"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

const defaultLoginPath = "/login.php"
const defaultLoggedInMarker = "Log Out"
const defaultRevalidateWindow = 10 * time.Minute

// Client scrapes the game site through one login session. it owns its
// jar and session state, two clients never share cookies. all network
// operations funnel through one serializer, at most one request is in
// flight against the host at any time.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	jar   *Jar
	creds Credentials
	queue *Serializer
	sess  session

	loginPath        string
	loggedInMarker   string
	revalidateWindow time.Duration
	now              func() time.Time
}

type ClientOptions struct {
	BaseUrl     string
	Credentials Credentials
	// LoginPath defaults to /login.php
	LoginPath string
	// LoggedInMarker is the body substring that proves the login took.
	// defaults to the logout link text.
	LoggedInMarker string
	// RevalidateWindow bounds how long a successful login is trusted
	// without re-checking. defaults to 10 minutes.
	RevalidateWindow time.Duration
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.Credentials.Username == "" || opts.Credentials.Password == "" {
		return nil, ErrNotConfigured
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)
	// redirect inspection is load bearing for re-authentication, the
	// http client must hand 3xx responses back instead of following
	client.GetClient().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	telemetry.InstrumentResty(client, "scrapers/tppc/http")
	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	c := &Client{
		BaseUrl:          baseUrl,
		Http:             client,
		jar:              NewJar(),
		creds:            opts.Credentials,
		queue:            NewSerializer(),
		loginPath:        opts.LoginPath,
		loggedInMarker:   opts.LoggedInMarker,
		revalidateWindow: opts.RevalidateWindow,
		now:              time.Now,
	}
	if c.loginPath == "" {
		c.loginPath = defaultLoginPath
	}
	if c.loggedInMarker == "" {
		c.loggedInMarker = defaultLoggedInMarker
	}
	if c.revalidateWindow == 0 {
		c.revalidateWindow = defaultRevalidateWindow
	}
	return c, nil
}

// Close drains the request queue. the client must not be used after.
func (c *Client) Close() {
	c.queue.Close()
}

func (c *Client) Jar() *Jar {
	return c.jar
}

// FetchPage retrieves one page body under a valid session.
func (c *Client) FetchPage(ctx context.Context, endpoint string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPage")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "endpoint",
		Value: attribute.StringValue(endpoint),
	})

	var body string
	var err error
	qerr := c.queue.Do(ctx, func() {
		body, err = c.fetchLocked(ctx, http.MethodGet, endpoint, nil)
	})
	if qerr != nil {
		span.SetStatus(codes.Error, "abandoned in queue")
		return "", qerr
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return body, nil
}

// SubmitForm posts a url-encoded form and returns the response body,
// with the same session and redirect handling as FetchPage.
func (c *Client) SubmitForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	ctx, span := tracer.Start(ctx, "client:SubmitForm")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "endpoint",
		Value: attribute.StringValue(endpoint),
	})

	var body string
	var err error
	qerr := c.queue.Do(ctx, func() {
		body, err = c.fetchLocked(ctx, http.MethodPost, endpoint, form)
	})
	if qerr != nil {
		span.SetStatus(codes.Error, "abandoned in queue")
		return "", qerr
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return body, nil
}

func (c *Client) fetchLocked(ctx context.Context, method, endpoint string, form url.Values) (string, error) {
	err := c.loginLocked(ctx, false)
	if err != nil {
		return "", err
	}
	// exactly one login-triggered retry per logical call. a second
	// consecutive login redirect means the credential pair is broken,
	// not that the session expired twice in one request.
	return c.executeLocked(ctx, method, endpoint, form, true, true)
}

func (c *Client) executeLocked(
	ctx context.Context,
	method, endpoint string,
	form url.Values,
	canRetryLogin, canFollowRedirect bool,
) (string, error) {
	req := c.Http.R().
		SetContext(ctx).
		SetHeader("Cookie", c.jar.Header())

	var res *resty.Response
	var err error
	switch method {
	case http.MethodPost:
		res, err = req.
			SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(form.Encode()).
			Post(endpoint)
	default:
		res, err = req.Get(endpoint)
	}
	if err != nil {
		return "", &TransportError{Err: err}
	}
	c.jar.UpdateFrom(res.RawResponse.Cookies())

	if res.IsSuccess() {
		return res.String(), nil
	}

	if res.StatusCode() >= 300 && res.StatusCode() < 400 {
		location := res.Header().Get("Location")
		if location == "" {
			return "", &FetchError{
				Endpoint:   endpoint,
				StatusCode: res.StatusCode(),
				Reason:     "redirect without location",
			}
		}
		if isLoginLocation(location, c.loginPath) {
			if !canRetryLogin {
				return "", &FetchError{
					Endpoint:   endpoint,
					StatusCode: res.StatusCode(),
					Reason:     "session rejected after re-login",
				}
			}
			err := c.loginLocked(ctx, true)
			if err != nil {
				return "", err
			}
			// replay the original request, same method and body
			return c.executeLocked(ctx, method, endpoint, form, false, canFollowRedirect)
		}
		if !canFollowRedirect {
			return "", &FetchError{
				Endpoint:   endpoint,
				StatusCode: res.StatusCode(),
				Reason:     "too many redirects",
			}
		}
		// an ordinary redirect is followed once with a fresh GET and
		// forfeits login-retry eligibility
		return c.executeLocked(ctx, http.MethodGet, location, nil, false, false)
	}

	return "", &FetchError{Endpoint: endpoint, StatusCode: res.StatusCode()}
}
