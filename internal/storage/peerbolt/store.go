// Package peerbolt persists peer sightings in a BoltDB file so a restarted
// node can redial peers it has seen before without waiting for multicast.
package peerbolt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bByToken = "peers_by_token"
	bBySeen  = "peers_by_seen"

	defaultTO = 2 * time.Second
)

// Record is one remembered peer, keyed by its announce token.
type Record struct {
	Token     string `json:"token"`
	Addr      string `json:"addr"`
	Port      uint16 `json:"port"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Failures  int    `json:"failures"`
}

// Store is a BoltDB-backed peer store.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bByToken)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bBySeen)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Note records a sighting of token at addr:port, updating LastSeen and
// moving the record in the seen index. First sightings set FirstSeen.
func (s *Store) Note(token, addr string, port uint16) error {
	if token == "" {
		return errors.New("missing token")
	}
	ts := s.now().Unix()

	return s.db.Update(func(tx *bolt.Tx) error {
		byToken := tx.Bucket([]byte(bByToken))
		bySeen := tx.Bucket([]byte(bBySeen))

		rec := Record{Token: token, FirstSeen: ts}
		if raw := byToken.Get([]byte(token)); raw != nil {
			if err := json.Unmarshal(raw, &rec); err == nil {
				if err := bySeen.Delete(seenKey(rec.LastSeen, token)); err != nil {
					return err
				}
			}
		}
		rec.Addr = addr
		rec.Port = port
		rec.LastSeen = ts

		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := byToken.Put([]byte(token), val); err != nil {
			return err
		}
		return bySeen.Put(seenKey(ts, token), nil)
	})
}

// NoteSuccess resets the failure count after a dial that produced a session.
func (s *Store) NoteSuccess(token string) error {
	return s.updateRecord(token, func(r *Record) {
		r.Failures = 0
	})
}

// NoteFailure bumps the failure count after a dial that did not connect.
func (s *Store) NoteFailure(token string) error {
	return s.updateRecord(token, func(r *Record) {
		r.Failures++
	})
}

func (s *Store) updateRecord(token string, fn func(*Record)) error {
	if token == "" {
		return errors.New("missing token")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		byToken := tx.Bucket([]byte(bByToken))
		raw := byToken.Get([]byte(token))
		if raw == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Corrupt entry: drop it rather than carry it forever.
			return byToken.Delete([]byte(token))
		}
		fn(&rec)
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return byToken.Put([]byte(token), val)
	})
}

// Get returns the record for token, or ok=false if none is stored.
func (s *Store) Get(token string) (Record, bool, error) {
	var rec Record
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bByToken)).Get([]byte(token))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		ok = true
		return nil
	})
	return rec, ok, err
}

// Candidates lists up to limit peers, most recently seen first, skipping
// records with more than maxFailures consecutive dial failures.
func (s *Store) Candidates(limit, maxFailures int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	out := make([]Record, 0, limit)

	err := s.db.View(func(tx *bolt.Tx) error {
		bySeen := tx.Bucket([]byte(bBySeen))
		byToken := tx.Bucket([]byte(bByToken))

		c := bySeen.Cursor()
		for k, _ := c.Last(); k != nil && len(out) < limit; k, _ = c.Prev() {
			_, token := splitSeenKey(k)
			if token == "" {
				continue
			}
			raw := byToken.Get([]byte(token))
			if raw == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			// Stale index entries point at an older LastSeen.
			if ts, _ := splitSeenKey(k); ts != rec.LastSeen {
				continue
			}
			if rec.Failures > maxFailures {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func seenKey(ts int64, token string) []byte {
	// big-endian timestamp for correct ordering; append 0x00 + token so
	// multiple peers can share a second.
	b := make([]byte, 8+1+len(token))
	binary.BigEndian.PutUint64(b[:8], uint64(ts))
	b[8] = 0
	copy(b[9:], token)
	return b
}

func splitSeenKey(k []byte) (int64, string) {
	if len(k) < 9 {
		return 0, ""
	}
	ts := int64(binary.BigEndian.Uint64(k[:8]))
	return ts, string(k[9:])
}
