package tppc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

// fakeSite mimics the login-gated upstream: pages 302 to /login.php
// until the session cookie from a successful login is presented.
type fakeSite struct {
	mu         sync.Mutex
	logins     int
	pageHits   map[string]int
	sessionSeq int
}

func newFakeSite() *fakeSite {
	return &fakeSite{pageHits: map[string]int{}}
}

func (f *fakeSite) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeSite) hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageHits[path]
}

func (f *fakeSite) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pageHits[r.URL.Path]++
		f.mu.Unlock()

		switch r.URL.Path {
		case "/login.php":
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())

			f.mu.Lock()
			f.logins++
			f.sessionSeq++
			session := fmt.Sprintf("sess-%d", f.sessionSeq)
			f.mu.Unlock()

			if r.PostForm.Get("Login") != "ash" || r.PostForm.Get("Password") != "pikachu" {
				fmt.Fprint(w, "<html><body>Incorrect username or password.</body></html>")
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: session})
			fmt.Fprint(w, "<html><body><a href=\"/logout.php\">Log Out</a></body></html>")

		case "/ok.php":
			fmt.Fprint(w, "OK")

		case "/gated.php":
			cookie, err := r.Cookie("session")
			f.mu.Lock()
			current := fmt.Sprintf("sess-%d", f.sessionSeq)
			f.mu.Unlock()
			if err != nil || cookie.Value != current {
				w.Header().Set("Location", "/login.php")
				w.WriteHeader(http.StatusFound)
				return
			}
			fmt.Fprint(w, "OK")

		case "/alwayslogin.php":
			w.Header().Set("Location", "/login.php")
			w.WriteHeader(http.StatusFound)

		case "/moved.php":
			w.Header().Set("Location", "/ok.php")
			w.WriteHeader(http.StatusMovedPermanently)

		case "/broken-redirect.php":
			w.WriteHeader(http.StatusFound)

		case "/missing.php":
			w.WriteHeader(http.StatusNotFound)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, baseUrl string) *Client {
	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:     baseUrl,
		Credentials: Credentials{Username: "ash", Password: "pikachu"},
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), ClientOptions{
		BaseUrl: "http://localhost",
	})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientFetchPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	body, err := client.FetchPage(context.Background(), "/ok.php")
	require.NoError(t, err)
	require.Equal(t, "OK", body)
	require.Equal(t, 1, site.loginCount())

	// still inside the revalidation window, no second login exchange
	_, err = client.FetchPage(context.Background(), "/ok.php")
	require.NoError(t, err)
	require.Equal(t, 1, site.loginCount())
}

func TestClientReloginOnRedirect(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	// warm the session, then invalidate it server side so the next
	// fetch bounces to the login page
	_, err := client.FetchPage(context.Background(), "/ok.php")
	require.NoError(t, err)
	site.mu.Lock()
	site.sessionSeq++
	site.mu.Unlock()

	body, err := client.FetchPage(context.Background(), "/gated.php")
	require.NoError(t, err)
	require.Equal(t, "OK", body)
	// initial login plus exactly one forced re-login
	require.Equal(t, 2, site.loginCount())
	require.Equal(t, 2, site.hits("/gated.php"))
}

func TestClientLoginRetryBound(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchPage(context.Background(), "/alwayslogin.php")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	// initial login plus the single permitted re-login, then failure
	require.Equal(t, 2, site.loginCount())
	require.Equal(t, 2, site.hits("/alwayslogin.php"))
}

func TestClientFollowsOrdinaryRedirectOnce(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	body, err := client.FetchPage(context.Background(), "/moved.php")
	require.NoError(t, err)
	require.Equal(t, "OK", body)
	require.Equal(t, 1, site.hits("/moved.php"))
	require.Equal(t, 1, site.hits("/ok.php"))
}

func TestClientMalformedRedirect(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchPage(context.Background(), "/broken-redirect.php")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusFound, fetchErr.StatusCode)
}

func TestClientFetchErrorStatus(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.FetchPage(context.Background(), "/missing.php")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
}

func TestClientInvalidCredentials(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:     server.URL,
		Credentials: Credentials{Username: "ash", Password: "wrong"},
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.FetchPage(context.Background(), "/ok.php")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestClientSessionExpiryForcesRelogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	site := newFakeSite()
	server := httptest.NewServer(site.handler(t))
	defer server.Close()

	client := newTestClient(t, server.URL)

	require.NoError(t, client.Login(context.Background(), false))
	require.Equal(t, 1, site.loginCount())

	// within the window a non-forced login is a no-op
	require.NoError(t, client.Login(context.Background(), false))
	require.Equal(t, 1, site.loginCount())

	// past the window the heuristic no longer applies
	client.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	require.NoError(t, client.Login(context.Background(), false))
	require.Equal(t, 2, site.loginCount())
}

func TestClientSubmitFormReplaysBody(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tppc")
	defer cleanup()

	var mu sync.Mutex
	var bodies []string
	logins := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		logins++
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
		fmt.Fprint(w, "Log Out")
	})
	mux.HandleFunc("/trade.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		bodies = append(bodies, r.PostForm.Encode())
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Location", "/login.php")
			w.WriteHeader(http.StatusFound)
			return
		}
		fmt.Fprint(w, "traded")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL)

	body, err := client.SubmitForm(context.Background(), "/trade.php", url.Values{
		"offer": {"magikarp"},
	})
	require.NoError(t, err)
	require.Equal(t, "traded", body)

	// the replayed POST carries the same form body as the original
	require.Len(t, bodies, 2)
	require.Equal(t, bodies[0], bodies[1])
	require.Equal(t, 2, logins)
}
