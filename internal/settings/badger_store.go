package settings

import (
	"encoding/json"
	"errors"

	"degen-dashboard-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// Keys for the individual settings records. Each record is written in its
// own transaction, so a crash can never leave a half-written session.
var (
	sessionKey  = []byte("dashboard/session")
	endpointKey = []byte("dashboard/endpoint_override")
	watchKey    = []byte("dashboard/watch")
)

// badgerStore is the BadgerDB implementation of the Store.
type badgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates and returns a new store instance connected to a BadgerDB database.
func NewBadgerStore(dbPath string) (Store, error) {
	opts := badger.DefaultOptions(dbPath)
	// For this use case, we can disable Badger's own logging to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerStore{db: db}, nil
}

// SaveSession atomically saves the login session as a single record.
func (s *badgerStore) SaveSession(session *models.Session) error {
	return s.setJSON(sessionKey, session)
}

// LoadSession loads the persisted session.
// If the session key is not found, it returns (nil, nil) to indicate no session is present.
func (s *badgerStore) LoadSession() (*models.Session, error) {
	var session models.Session
	found, err := s.getJSON(sessionKey, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// ClearSession removes the persisted session, if any.
func (s *badgerStore) ClearSession() error {
	return s.delete(sessionKey)
}

// SaveEndpointOverride pins an explicit backend address.
func (s *badgerStore) SaveEndpointOverride(rawURL string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(endpointKey, []byte(rawURL))
	})
}

// LoadEndpointOverride returns the pinned backend address, or ("", nil) if none is set.
func (s *badgerStore) LoadEndpointOverride() (string, error) {
	var raw string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(endpointKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = string(val)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// ClearEndpointOverride removes the pinned backend address, if any.
func (s *badgerStore) ClearEndpointOverride() error {
	return s.delete(endpointKey)
}

// SaveWatch saves the chart symbol and timeframe selection.
func (s *badgerStore) SaveWatch(watch models.Watch) error {
	return s.setJSON(watchKey, watch)
}

// LoadWatch loads the persisted chart selection, or (nil, nil) if none is found.
func (s *badgerStore) LoadWatch() (*models.Watch, error) {
	var watch models.Watch
	found, err := s.getJSON(watchKey, &watch)
	if err != nil || !found {
		return nil, err
	}
	return &watch, nil
}

// Close gracefully closes the connection to the database.
func (s *badgerStore) Close() error {
	return s.db.Close()
}

// setJSON marshals v and writes it under key in a single transaction.
func (s *badgerStore) setJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// getJSON reads the value under key into v.
// It reports found=false when the key does not exist.
func (s *badgerStore) getJSON(key []byte, v interface{}) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			// This is the correct way to handle key not found.
			// We return the specific error to check it outside the transaction.
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("settings value is empty in database")
			}
			return json.Unmarshal(val, v)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// delete removes key if it exists. Deleting a missing key is not an error.
func (s *badgerStore) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
