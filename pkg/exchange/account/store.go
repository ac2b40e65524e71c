package account

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store provides Pebble-based persistence for accounts and positions.
// Thread-safe: all operations go through the Manager's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// keys: a:<account-id>
func accountKey(id string) []byte { return append([]byte("a:"), id...) }

// SaveAccount persists an account
func (s *Store) SaveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acc.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount loads an account; returns nil if it doesn't exist
func (s *Store) LoadAccount(id string) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	if acc.Positions == nil {
		acc.Positions = make(map[string]*Position)
	}
	return &acc, nil
}
