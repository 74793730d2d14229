package freshcache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/darknesspwnsu/tppc-faqbot-sub004/lib/telemetry"
)

var tracer = telemetry.Tracer("faqbot.lib.freshcache")

type Entry struct {
	Key       string
	Payload   []byte
	UpdatedAt time.Time
}

// Store is the key/value persistence the cache sits on. upsert is
// last-write-wins per key, retention and eviction are the store's
// business, the cache never deletes.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Upsert(ctx context.Context, entry Entry) error
}

// RefreshFunc produces a new payload, typically by driving the
// scraping client and a page parser.
type RefreshFunc func(ctx context.Context) ([]byte, error)

// ValidateFunc reports whether a stored payload is structurally
// complete. a payload failing validation is refreshed even inside its
// ttl window.
type ValidateFunc func(payload []byte) bool

// Cache owns the freshness decision for every key it serves. callers
// never inspect UpdatedAt to make their own staleness judgment, except
// for cosmetic "last updated N minutes ago" display via Peek.
type Cache struct {
	store Store
	now   func() time.Time
}

func New(store Store) Cache {
	return Cache{store: store, now: time.Now}
}

// GetOrRefresh returns the stored entry for key when it is fresh, or
// invokes refresh, persists the result and returns the new entry.
//
// staleness: absent, or older than ttl (when ttl > 0), or failing
// validate (when supplied). a ttl of zero means "refresh only when
// absent or invalid".
//
// a failed refresh leaves the previous entry intact and propagates the
// error. concurrent refreshes of one key are not deduplicated here,
// the scheduler serializes per-key refreshes and the scraping client
// serializes the underlying fetches.
func (c Cache) GetOrRefresh(
	ctx context.Context,
	key string,
	ttl time.Duration,
	refresh RefreshFunc,
	validate ValidateFunc,
) (Entry, error) {
	ctx, span := tracer.Start(ctx, "cache:GetOrRefresh")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "key",
		Value: attribute.StringValue(key),
	})

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, "failed to read store")
		return Entry{}, err
	}

	stale := !ok
	if !stale && ttl > 0 && c.now().Sub(entry.UpdatedAt) > ttl {
		stale = true
	}
	if !stale && validate != nil && !validate(entry.Payload) {
		stale = true
	}
	if !stale {
		span.AddEvent("served from cache")
		return entry, nil
	}

	fresh, err := c.refreshAndPersist(ctx, key, entry, ok, refresh)
	if err != nil {
		span.SetStatus(codes.Error, "refresh failed")
		return Entry{}, err
	}
	span.AddEvent("refreshed")
	return fresh, nil
}

// ForceRefresh refreshes key unconditionally, ignoring both ttl and
// validation. for callers reacting to an upstream state change the
// entry's age knows nothing about, like a daily reset.
func (c Cache) ForceRefresh(ctx context.Context, key string, refresh RefreshFunc) (Entry, error) {
	ctx, span := tracer.Start(ctx, "cache:ForceRefresh")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "key",
		Value: attribute.StringValue(key),
	})

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		span.SetStatus(codes.Error, "failed to read store")
		return Entry{}, err
	}
	fresh, err := c.refreshAndPersist(ctx, key, entry, ok, refresh)
	if err != nil {
		span.SetStatus(codes.Error, "refresh failed")
		return Entry{}, err
	}
	span.AddEvent("refreshed")
	return fresh, nil
}

func (c Cache) refreshAndPersist(
	ctx context.Context,
	key string,
	prev Entry,
	havePrev bool,
	refresh RefreshFunc,
) (Entry, error) {
	payload, err := refresh(ctx)
	if err != nil {
		return Entry{}, err
	}

	updatedAt := c.now()
	// UpdatedAt must strictly increase on every overwrite
	if havePrev && !updatedAt.After(prev.UpdatedAt) {
		updatedAt = prev.UpdatedAt.Add(time.Nanosecond)
	}
	fresh := Entry{Key: key, Payload: payload, UpdatedAt: updatedAt}
	err = c.store.Upsert(ctx, fresh)
	if err != nil {
		return Entry{}, err
	}
	return fresh, nil
}

// Peek returns the stored entry without any freshness judgment. read
// only, for display purposes.
func (c Cache) Peek(ctx context.Context, key string) (Entry, bool, error) {
	return c.store.Get(ctx, key)
}
