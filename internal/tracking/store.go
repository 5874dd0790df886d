package tracking

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketOpens     = []byte("opens")
	bucketOpenIndex = []byte("open_index")
)

// OpenEvent is one observed tracking pixel hit.
type OpenEvent struct {
	TrackingID string    `json:"tracking_id"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Store is an append-only log of open events in BoltDB. The relational
// ledger keeps only the first open per recipient; the full hit history
// lives here.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if needed) the tracking event database.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOpens, bucketOpenIndex} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// RecordOpen appends one open event. Events for the same tracking token
// accumulate; deduplication is the reader's concern.
func (s *Store) RecordOpen(ev *OpenEvent) error {
	if ev.OpenedAt.IsZero() {
		ev.OpenedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		opens := tx.Bucket(bucketOpens)
		seq, err := opens.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal open event: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := opens.Put(key, data); err != nil {
			return fmt.Errorf("failed to store open event: %w", err)
		}

		// Per-token index: tracking_id:seq -> event key
		index := tx.Bucket(bucketOpenIndex)
		indexKey := append([]byte(ev.TrackingID+":"), key...)
		return index.Put(indexKey, key)
	})
}

// Opens returns every recorded open for a tracking token, oldest first.
func (s *Store) Opens(trackingID string) ([]OpenEvent, error) {
	var events []OpenEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketOpenIndex)
		opens := tx.Bucket(bucketOpens)

		prefix := []byte(trackingID + ":")
		c := index.Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			data := opens.Get(v)
			if data == nil {
				continue
			}
			var ev OpenEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
