// Package cache is a content-addressed, file-backed translation cache.
//
// Entries live in a bbolt database, one bucket per language pair. Keys are
// the sha256 of the exact source string. An entry older than the TTL is
// treated as absent and deleted on the read that finds it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultTTL is used when Options.TTL is zero.
const DefaultTTL = 30 * 24 * time.Hour

// DefaultNamespace is the bucket used when Options.Namespace is empty.
const DefaultNamespace = "default"

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Entry is one cached translation.
type Entry struct {
	Translated  string    `json:"translated"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
}

// Options configures Open.
type Options struct {
	// TTL is the maximum entry age.
	TTL time.Duration
	// Namespace selects the bucket, e.g. "en:fr".
	Namespace string
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Stats summarizes one namespace.
type Stats struct {
	Namespace string
	Entries   int
	Expired   int
	Hits      int
}

// Cache is safe for concurrent use. A single mutex guards the store handle.
type Cache struct {
	mu     sync.Mutex
	db     *bolt.DB
	bucket []byte
	ttl    time.Duration
	now    func() time.Time
}

// Namespace builds the bucket name for a language pair.
func Namespace(sourceLang, targetLang string) string {
	return sourceLang + ":" + targetLang
}

// Key returns the content hash used as the cache key for text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Open opens or creates the cache database at path.
func Open(path string, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}

	bucket := []byte(opts.Namespace)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache bucket %s: %w", opts.Namespace, err)
	}

	return &Cache{db: db, bucket: bucket, ttl: opts.TTL, now: opts.Now}, nil
}

// TTL returns the configured maximum entry age.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) >= c.ttl
}

// Get returns the cached translation of text. A hit refreshes the entry's
// access time and count; an expired entry is deleted and reported as a miss.
func (c *Cache) Get(text string) (string, bool, error) {
	e, ok, err := c.Lookup(text)
	if err != nil || !ok {
		return "", false, err
	}
	return e.Translated, true, nil
}

// Lookup is Get returning the full, refreshed entry.
func (c *Cache) Lookup(text string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return Entry{}, false, ErrClosed
	}

	key := []byte(Key(text))
	now := c.now()
	var entry Entry
	var hit bool

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return b.Delete(key)
		}
		if c.expired(entry, now) {
			return b.Delete(key)
		}
		entry.AccessedAt = now
		entry.AccessCount++
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		hit = true
		return b.Put(key, data)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache: %w", err)
	}
	if !hit {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores the translation of text, replacing any existing entry.
func (c *Cache) Put(text, translated string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return ErrClosed
	}

	now := c.now()
	data, err := json.Marshal(Entry{
		Translated: translated,
		CreatedAt:  now,
		AccessedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).Put([]byte(Key(text)), data)
	})
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}

// CleanupExpired deletes every entry older than the TTL and returns how
// many were removed.
func (c *Cache) CleanupExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return 0, ErrClosed
	}

	now := c.now()
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil || c.expired(e, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleaning cache: %w", err)
	}
	return removed, nil
}

// Stats reports entry counts for the current namespace.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Namespace: string(c.bucket)}
	if c.db == nil {
		return st, ErrClosed
	}

	now := c.now()
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).ForEach(func(k, v []byte) error {
			st.Entries++
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil || c.expired(e, now) {
				st.Expired++
				return nil
			}
			st.Hits += e.AccessCount
			return nil
		})
	})
	if err != nil {
		return st, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}

// Namespaces lists every bucket in the database.
func (c *Cache) Namespaces() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil, ErrClosed
	}

	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// Close releases the database file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
