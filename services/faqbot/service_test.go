package faqbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/calendar"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/freshcache"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/scrapers/tppc"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/testutil"
)

const leaderboardHtml = `<html><body>
<table class="leaderboard">
<tr><th>#</th><th>Trainer</th><th>Level</th></tr>
<tr><td>1</td><td>Red</td><td>1,234,567</td></tr>
<tr><td>2</td><td>Blue</td><td>987,654</td></tr>
</table>
</body></html>`

type fakeUpstream struct {
	baseUrl string

	mu          sync.Mutex
	pageHits    int
	leaderboard string
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
		fmt.Fprint(w, "Log Out")
	})
	mux.HandleFunc("/leaderboard.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pageHits++
		body := f.leaderboard
		f.mu.Unlock()
		fmt.Fprint(w, body)
	})
	return mux
}

func (f *fakeUpstream) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageHits
}

func setupService(t *testing.T) (*Service, *fakeUpstream, freshcache.SqliteStore) {
	env, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/faqbot",
		DbSchema: freshcache.Schema,
	})
	t.Cleanup(cleanup)

	upstream := &fakeUpstream{leaderboard: leaderboardHtml}
	server := httptest.NewServer(upstream.handler())
	t.Cleanup(server.Close)
	upstream.baseUrl = server.URL

	client, err := tppc.NewClient(context.Background(), tppc.ClientOptions{
		BaseUrl:     server.URL,
		Credentials: tppc.Credentials{Username: "ash", Password: "pikachu"},
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store, err := freshcache.NewSqliteStore(env.DB)
	require.NoError(t, err)

	service := NewService(client, store, calendar.New(10*time.Minute), nil)
	return service, upstream, store
}

func TestRefreshPipeline(t *testing.T) {
	service, upstream, _ := setupService(t)

	require.NoError(t, service.RegisterFeed(Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		TTL:      time.Hour,
		Parse:    ParseLeaderboard,
		Validate: ValidateLeaderboard,
		Hour:     calendar.NoHourGate,
	}))

	entry, err := service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.Equal(t, 1, upstream.hits())

	var rows []LeaderboardRow
	require.NoError(t, json.Unmarshal(entry.Payload, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "Red", rows[0].Trainer)
	require.Equal(t, int64(1_234_567), rows[0].Level)

	// fresh within ttl: no second scrape, same payload back
	again, err := service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.Equal(t, 1, upstream.hits())
	require.Equal(t, entry.Payload, again.Payload)

	updatedAt, ok, err := service.LastUpdated(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, updatedAt.Equal(entry.UpdatedAt))
}

func TestRefreshParseErrorLeavesCacheIntact(t *testing.T) {
	service, upstream, store := setupService(t)

	require.NoError(t, service.RegisterFeed(Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		TTL:      time.Nanosecond,
		Parse:    ParseLeaderboard,
		Validate: ValidateLeaderboard,
		Hour:     calendar.NoHourGate,
	}))

	entry, err := service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)

	// the upstream starts serving an empty page; the parser must
	// reject it and the stored payload must survive untouched
	upstream.mu.Lock()
	upstream.leaderboard = "<html><body>maintenance</body></html>"
	upstream.mu.Unlock()
	time.Sleep(time.Millisecond)

	_, err = service.Refresh(context.Background(), "leaderboard")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "leaderboard", parseErr.Feed)

	kept, ok, err := store.Get(context.Background(), "feed:leaderboard")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Payload, kept.Payload)
}

func TestRefreshUnknownFeed(t *testing.T) {
	service, _, _ := setupService(t)
	_, err := service.Refresh(context.Background(), "nope")
	require.Error(t, err)
}

func TestRegisterFeedRejectsDuplicates(t *testing.T) {
	service, _, _ := setupService(t)

	feed := Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		Parse:    ParseLeaderboard,
		Hour:     calendar.NoHourGate,
	}
	require.NoError(t, service.RegisterFeed(feed))
	require.Error(t, service.RegisterFeed(feed))
}

func TestRefreshPropagatesInvalidCredentials(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/faqbot")
	t.Cleanup(cleanup)

	mux := http.NewServeMux()
	mux.HandleFunc("/login.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Incorrect username or password.")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := tppc.NewClient(context.Background(), tppc.ClientOptions{
		BaseUrl:     server.URL,
		Credentials: tppc.Credentials{Username: "ash", Password: "wrong"},
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	service := NewService(client, freshcache.NewMemoryStore(8, time.Hour), calendar.New(time.Minute), nil)
	require.NoError(t, service.RegisterFeed(Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		Parse:    ParseLeaderboard,
		Hour:     calendar.NoHourGate,
	}))

	_, err = service.Refresh(context.Background(), "leaderboard")
	require.True(t, errors.Is(err, tppc.ErrInvalidCredentials))
}

func TestMidnightRefreshBypassesTtl(t *testing.T) {
	service, upstream, store := setupService(t)

	// the production leaderboard schedule: 24h ttl, refreshed by the
	// morning job, force-refreshed again at midnight
	require.NoError(t, service.RegisterFeed(Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		TTL:      24 * time.Hour,
		Parse:    ParseLeaderboard,
		Validate: ValidateLeaderboard,
		Hour:     9,
		Midnight: true,
	}))

	_, err := service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.Equal(t, 1, upstream.hits())

	// by midnight the morning entry is ~15h old, well inside its ttl.
	// a gated refresh serves from cache
	entry, ok, err := store.Get(context.Background(), "feed:leaderboard")
	require.NoError(t, err)
	require.True(t, ok)
	entry.UpdatedAt = entry.UpdatedAt.Add(-15 * time.Hour)
	require.NoError(t, store.Upsert(context.Background(), entry))

	_, err = service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.Equal(t, 1, upstream.hits())

	// the midnight job must observe the daily reset anyway
	forced, err := service.ForceRefresh(context.Background(), "leaderboard")
	require.NoError(t, err)
	require.Equal(t, 2, upstream.hits())
	require.True(t, forced.UpdatedAt.After(entry.UpdatedAt))
}

func TestRefreshRecordsRawPages(t *testing.T) {
	service, upstream, _ := setupService(t)

	pagesDb, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { pagesDb.Close() })
	service.RecordPagesTo(freshcache.NewBadgerStore(pagesDb))

	require.NoError(t, service.RegisterFeed(Feed{
		Name:     "leaderboard",
		Endpoint: "/leaderboard.php",
		TTL:      time.Hour,
		Parse:    ParseLeaderboard,
		Hour:     calendar.NoHourGate,
	}))

	_, err = service.Refresh(context.Background(), "leaderboard")
	require.NoError(t, err)

	base, err := url.Parse(upstream.baseUrl)
	require.NoError(t, err)
	key, err := freshcache.NormalizeUrlKey(base, "/leaderboard.php")
	require.NoError(t, err)

	page, ok, err := freshcache.NewBadgerStore(pagesDb).Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(page.Payload), `table class="leaderboard"`)
}
