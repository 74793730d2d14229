package faqbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/calendar"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/freshcache"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/scrapers/tppc"
	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

var tracer = telemetry.Tracer("faqbot.services.faqbot")

// DefaultTickInterval is how often the scheduler re-evaluates its
// jobs. ten minutes keeps hour gates responsive without hammering
// anything, every fire is still idempotent per local day.
const DefaultTickInterval = 10 * time.Minute

// ParseFunc turns one scraped page into the structured payload stored
// for a feed. pure, no I/O. an error here must propagate, a silently
// empty result would poison the cache with an incomplete payload.
type ParseFunc func(html string) ([]byte, error)

type ParseError struct {
	Feed string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %q: %s", e.Feed, e.Err.Error())
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Feed struct {
	Name string
	// Endpoint is the page that backs this feed.
	Endpoint string
	// Form, when set, makes the fetch a POST with this body.
	Form url.Values
	// TTL of zero means "refresh only when absent or invalid".
	TTL      time.Duration
	Parse    ParseFunc
	Validate freshcache.ValidateFunc

	// Hour gates the daily refresh job, calendar.NoHourGate to run on
	// the first tick of each local day.
	Hour   int
	Policy calendar.Policy
	// Midnight additionally schedules a refresh right after each ET
	// midnight. the game's daily resets happen there, a stale morning
	// leaderboard is the most reported complaint.
	Midnight bool
}

// Service glues the three subsystems together: scheduler ticks ask the
// cache whether a feed key went stale, staleness drives the scraping
// client, parsed payloads flow back into the store.
type Service struct {
	client *tppc.Client
	cache  freshcache.Cache
	sched  *calendar.Scheduler
	alert  *Alerter
	pages  freshcache.Store

	mu    sync.Mutex
	feeds map[string]Feed
}

// alert may be nil, invalid credentials are then only logged.
func NewService(client *tppc.Client, store freshcache.Store, sched *calendar.Scheduler, alert *Alerter) *Service {
	return &Service{
		client: client,
		cache:  freshcache.New(store),
		sched:  sched,
		alert:  alert,
		feeds:  map[string]Feed{},
	}
}

func (s *Service) RegisterFeed(feed Feed) error {
	if feed.Name == "" || feed.Endpoint == "" || feed.Parse == nil {
		return fmt.Errorf("feed must carry a name, an endpoint and a parser")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.feeds[feed.Name]
	if exists {
		return fmt.Errorf("feed %q is already registered", feed.Name)
	}
	s.feeds[feed.Name] = feed
	return nil
}

func (s *Service) feed(name string) (Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[name]
	return feed, ok
}

func cacheKey(name string) string {
	return "feed:" + name
}

// Refresh serves the feed's payload, scraping only when the cached
// entry is stale.
func (s *Service) Refresh(ctx context.Context, name string) (freshcache.Entry, error) {
	ctx, span := tracer.Start(ctx, "service:Refresh")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "feed",
		Value: attribute.StringValue(name),
	})

	feed, ok := s.feed(name)
	if !ok {
		span.SetStatus(codes.Error, "unknown feed")
		return freshcache.Entry{}, fmt.Errorf("unknown feed %q", name)
	}

	entry, err := s.cache.GetOrRefresh(ctx, cacheKey(name), feed.TTL, s.refreshFunc(feed), feed.Validate)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return freshcache.Entry{}, s.reportRefreshErr(ctx, err)
	}
	return entry, nil
}

// ForceRefresh scrapes the feed right now, ignoring its ttl. midnight
// jobs need this: the daily reset changes the page without aging the
// cached entry, so a ttl-gated refresh would serve yesterday's rows.
func (s *Service) ForceRefresh(ctx context.Context, name string) (freshcache.Entry, error) {
	ctx, span := tracer.Start(ctx, "service:ForceRefresh")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "feed",
		Value: attribute.StringValue(name),
	})

	feed, ok := s.feed(name)
	if !ok {
		span.SetStatus(codes.Error, "unknown feed")
		return freshcache.Entry{}, fmt.Errorf("unknown feed %q", name)
	}

	entry, err := s.cache.ForceRefresh(ctx, cacheKey(name), s.refreshFunc(feed))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return freshcache.Entry{}, s.reportRefreshErr(ctx, err)
	}
	return entry, nil
}

// a standing configuration problem is surfaced loudly instead of
// hiding in per-tick logs
func (s *Service) reportRefreshErr(ctx context.Context, err error) error {
	if errors.Is(err, tppc.ErrInvalidCredentials) && s.alert != nil {
		s.alert.NotifyInvalidCredentials(ctx)
	}
	return err
}

func (s *Service) refreshFunc(feed Feed) freshcache.RefreshFunc {
	return func(ctx context.Context) ([]byte, error) {
		var html string
		var err error
		if feed.Form != nil {
			html, err = s.client.SubmitForm(ctx, feed.Endpoint, feed.Form)
		} else {
			html, err = s.client.FetchPage(ctx, feed.Endpoint)
		}
		if err != nil {
			return nil, err
		}
		s.recordPage(ctx, feed.Endpoint, html)

		payload, err := feed.Parse(html)
		if err != nil {
			return nil, &ParseError{Feed: feed.Name, Err: err}
		}
		return payload, nil
	}
}

// RecordPagesTo additionally stores every successfully fetched raw
// page, keyed by normalized url. builds a corpus for reworking a
// parser against the exact html the site served, including pages
// whose parse failed.
func (s *Service) RecordPagesTo(store freshcache.Store) {
	s.pages = store
}

func (s *Service) recordPage(ctx context.Context, endpoint, html string) {
	if s.pages == nil {
		return
	}
	key, err := freshcache.NormalizeUrlKey(s.client.BaseUrl, endpoint)
	if err != nil {
		slog.WarnContext(ctx, "failed to derive raw page key", "endpoint", endpoint, "err", err)
		return
	}
	err = s.pages.Upsert(ctx, freshcache.Entry{
		Key:       key,
		Payload:   []byte(html),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to record raw page", "endpoint", endpoint, "err", err)
	}
}

// LastUpdated reports when the feed was last refreshed. cosmetic
// "updated N minutes ago" use only, freshness is the cache's call.
func (s *Service) LastUpdated(ctx context.Context, name string) (time.Time, bool, error) {
	entry, ok, err := s.cache.Peek(ctx, cacheKey(name))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return entry.UpdatedAt, true, nil
}

// Start registers every feed with the scheduler and begins ticking.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	feeds := make([]Feed, 0, len(s.feeds))
	for _, feed := range s.feeds {
		feeds = append(feeds, feed)
	}
	s.mu.Unlock()

	for _, feed := range feeds {
		feed := feed
		s.sched.Register(calendar.Job{
			ID:     feed.Name,
			Hour:   feed.Hour,
			Policy: feed.Policy,
			Run: func(ctx context.Context) error {
				_, err := s.Refresh(ctx, feed.Name)
				return err
			},
		})
		if feed.Midnight {
			s.sched.StartMidnightJob(ctx, feed.Name+":midnight", nil, func(ctx context.Context) error {
				_, err := s.ForceRefresh(ctx, feed.Name)
				return err
			})
		}
	}
	s.sched.Start(ctx)
}
