// Package cache provides a keyed, TTL-stamped store for remote listing data.
//
// Entries are served instantly regardless of freshness; staleness never
// deletes an entry. Callers implement stale-while-revalidate: render whatever
// Get returns, then refresh in the background and Set on success.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Kind classifies what a cache entry holds. Each kind has its own TTL.
type Kind string

const (
	KindPhotos  Kind = "photos"
	KindFolders Kind = "folders"
	KindStatus  Kind = "status"
)

// Entry is one cached payload with its fetch timestamp.
type Entry struct {
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetchedAt"`
	Kind      Kind      `json:"kind"`
}

// Result is what Get hands back: the entry plus its freshness at lookup time.
type Result struct {
	Entry
	Stale bool
}

const bucketName = "entries"

// Store is the TTL cache. Safe for concurrent use.
//
// The in-memory map is authoritative; a bbolt file mirrors it so listings
// survive process restarts. Persistence failures degrade to memory-only
// operation.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttls    map[Kind]time.Duration
	db      *bolt.DB

	// now is replaceable for tests
	now func() time.Time
}

// DefaultTTLs returns the default per-kind TTLs.
func DefaultTTLs() map[Kind]time.Duration {
	return map[Kind]time.Duration{
		KindPhotos:  60 * time.Second,
		KindFolders: 300 * time.Second,
		KindStatus:  15 * time.Second,
	}
}

// NewStore creates a cache store. If path is non-empty, entries persist in a
// bbolt file there; an unopenable file is not an error, the store just runs
// memory-only.
func NewStore(path string, ttls map[Kind]time.Duration) (*Store, error) {
	if ttls == nil {
		ttls = DefaultTTLs()
	}

	s := &Store{
		entries: make(map[string]Entry),
		ttls:    ttls,
		now:     time.Now,
	}

	if path != "" {
		db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
		if err == nil {
			s.db = db
			s.loadFromDisk()
		}
	}

	return s, nil
}

// loadFromDisk populates the in-memory map from the bbolt file.
func (s *Store) loadFromDisk() {
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil // skip corrupt entries
			}
			s.entries[string(k)] = e
			return nil
		})
	})
}

// Get returns the entry for key, fresh or stale, or nothing if absent.
// Get performs no I/O beyond the in-memory lookup.
func (s *Store) Get(key string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Result{}, false
	}

	ttl := s.ttls[e.Kind]
	stale := ttl > 0 && s.now().Sub(e.FetchedAt) >= ttl
	return Result{Entry: e, Stale: stale}, true
}

// GetJSON unmarshals the entry for key into v.
func (s *Store) GetJSON(key string, v interface{}) (stale bool, ok bool) {
	res, ok := s.Get(key)
	if !ok {
		return false, false
	}
	if err := json.Unmarshal(res.Payload, v); err != nil {
		return false, false
	}
	return res.Stale, true
}

// Set stores payload under key, stamped with the current time.
func (s *Store) Set(key string, payload []byte, kind Kind) {
	e := Entry{
		Payload:   payload,
		FetchedAt: s.now(),
		Kind:      kind,
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	s.persist(key, &e)
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v interface{}, kind Kind) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Set(key, payload, kind)
	return nil
}

// Invalidate removes the entry for key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	s.persist(key, nil)
}

// InvalidateKind removes every entry of the given kind. The poller calls this
// on batch completion so listings re-fetch their processing-status fields.
func (s *Store) InvalidateKind(kind Kind) {
	s.mu.Lock()
	var removed []string
	for k, e := range s.entries {
		if e.Kind == kind {
			delete(s.entries, k)
			removed = append(removed, k)
		}
	}
	s.mu.Unlock()

	for _, k := range removed {
		s.persist(k, nil)
	}
}

// KeysOfKind returns the keys of every entry of the given kind, fresh or
// stale.
func (s *Store) KeysOfKind(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k, e := range s.entries {
		if e.Kind == kind {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// persist writes or deletes one entry on disk. Best-effort.
func (s *Store) persist(key string, e *Entry) {
	if s.db == nil {
		return
	}
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if e == nil {
			return b.Delete([]byte(key))
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Close releases the backing file, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
