package freshcache

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps cache entries in a local badger database. suited
// to raw-page caches keyed by url, where the sqlite store's single
// writer becomes a bottleneck.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) BadgerStore {
	return BadgerStore{db: db}
}

type badgerRecord struct {
	Payload   []byte `json:"payload"`
	UpdatedAt int64  `json:"updated_at"`
}

func (s BadgerStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	serialized, err := item.ValueCopy(nil)
	if err != nil {
		return Entry{}, false, err
	}

	var record badgerRecord
	err = json.Unmarshal(serialized, &record)
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Key:       key,
		Payload:   record.Payload,
		UpdatedAt: time.Unix(0, record.UpdatedAt),
	}, true, nil
}

func (s BadgerStore) Upsert(ctx context.Context, entry Entry) error {
	serialized, err := json.Marshal(badgerRecord{
		Payload:   entry.Payload,
		UpdatedAt: entry.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()
	err = tx.Set([]byte(entry.Key), serialized)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// NormalizeUrlKey derives a stable cache key from an endpoint relative
// to baseUrl. equivalent urls (trailing slash, encoded characters,
// ordering of defaults) must not produce distinct cache entries.
func NormalizeUrlKey(baseUrl *url.URL, endpoint string) (string, error) {
	full, err := baseUrl.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return purell.NormalizeURL(
		full,
		purell.FlagsSafe|
			purell.FlagsUsuallySafeNonGreedy|
			purell.FlagsUnsafeNonGreedy,
	), nil
}
