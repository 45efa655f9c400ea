package history

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/wendychen0731/chat-app/internal/logging"
)

// BadgerStore persists entries in BadgerDB.
//
// The key is "msg:{scope}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero-padded nanosecond timestamp makes lexicographical
//     order equal chronological order within a scope prefix.
//  2. The UUID suffix disambiguates two entries landing on the same
//     nanosecond.
type BadgerStore struct {
	db  *badger.DB
	log *logging.Logger
}

func NewBadgerStore(db *badger.DB, log *logging.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log}
}

// Open opens a Badger database at path with its own chatter silenced.
func Open(path string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(path).WithLogger(nil))
}

func entryKey(scope Scope, entry Entry) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", scope, entry.CreatedAt.UnixNano(), entry.ID))
}

// Append persists one entry.
func (s *BadgerStore) Append(scope Scope, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(scope, entry), value)
	})
}

// Query returns the newest entries of a scope, at most limit of them,
// reordered oldest first. The reverse iteration walks back from the end of
// the scope prefix so older entries never need to be read at all.
func (s *BadgerStore) Query(scope Scope, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	var raw [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", scope))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this prefix, then walk back.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(raw) == limit {
				s.log.Debug("replay limit reached", "scope", string(scope), "limit", limit)
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, b := range raw {
		var entry Entry
		if err := json.Unmarshal(b, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	// Newest-first on disk walk, oldest-first on the wire.
	return lo.Reverse(entries), nil
}
