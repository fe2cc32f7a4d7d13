// Package journal keeps a Badger DB-backed record of past receive sessions
// for `ferry history`.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for different data types
const (
	prefixSession = "s:" // s:<started-at big-endian ns><id> -> Entry
	prefixMeta    = "m:"
)

// CurrentSchemaVersion is written on first open.
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"

// Session outcomes.
const (
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// ErrNotFound is returned by Get for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Entry describes one finished receive session.
type Entry struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Specs       []string  `json:"specs"`
	Destination string    `json:"destination,omitempty"`
	Mode        string    `json:"mode"`
	Files       int       `json:"files"`
	Bytes       int64     `json:"bytes"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Duration returns how long the session ran.
func (e *Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

type schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Journal is the session record storage.
type Journal struct {
	db *badger.DB
}

// Open opens or creates a journal at the given directory.
func Open(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) ensureSchema() error {
	return j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(schemaKey))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
		if err != nil {
			return err
		}
		return txn.Set([]byte(schemaKey), data)
	})
}

// SchemaVersion returns the stored schema version, or 0 if unset.
func (j *Journal) SchemaVersion() int {
	var s schema
	_ = j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	return s.Version
}

// sessionKey orders sessions by start time so that iteration is
// chronological.
func sessionKey(e *Entry) []byte {
	key := make([]byte, 0, len(prefixSession)+8+len(e.ID))
	key = append(key, prefixSession...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.StartedAt.UnixNano()))
	return append(key, e.ID...)
}

// Record stores an entry. Recording the same id and start time again
// replaces the earlier entry.
func (j *Journal) Record(entry *Entry) error {
	if entry.ID == "" {
		return errors.New("journal entry has no id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(entry), data)
	})
}

// List returns recorded sessions, newest first. A limit of zero or less
// returns all of them.
func (j *Journal) List(limit int) ([]*Entry, error) {
	var results []*Entry

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		opts.Prefix = []byte(prefixSession)
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key.
		seek := append([]byte(prefixSession), 0xff)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return nil // Skip invalid entries
				}
				results = append(results, &entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return results, err
}

// Get returns the session with the given id.
func (j *Journal) Get(id string) (*Entry, error) {
	entries, err := j.List(0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Prune deletes all but the newest keep sessions and returns how many were
// removed.
func (j *Journal) Prune(keep int) (int, error) {
	removed := 0
	err := j.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(prefixSession)
		it := txn.NewIterator(opts)

		var keysToDelete [][]byte
		seen := 0
		seek := append([]byte(prefixSession), 0xff)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			seen++
			if seen > keep {
				keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		removed = len(keysToDelete)
		return nil
	})
	return removed, err
}
