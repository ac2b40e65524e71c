package market

import (
	"fmt"
	"sync"
)

// Registry manages the verse catalog in a thread-safe manner.
// Supports registration, lookup, and status updates for all tradable verses.
type Registry struct {
	mu     sync.RWMutex
	verses map[string]*Verse // id -> verse
}

// NewRegistry creates an empty verse registry
func NewRegistry() *Registry {
	return &Registry{
		verses: make(map[string]*Verse),
	}
}

// Register adds a new verse to the catalog.
// Returns error if a verse with the same id already exists.
func (r *Registry) Register(v *Verse) error {
	if v == nil {
		return fmt.Errorf("cannot register nil verse")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.verses[v.ID]; exists {
		return fmt.Errorf("verse %s already registered", v.ID)
	}

	r.verses[v.ID] = v
	return nil
}

// Get retrieves a verse by id.
// Returns error if the verse is not found.
func (r *Registry) Get(id string) (*Verse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.verses[id]
	if !exists {
		return nil, fmt.Errorf("verse %s not found", id)
	}
	return v, nil
}

// List returns all registered verses.
// Returns a fresh slice to avoid concurrent modification.
func (r *Registry) List() []*Verse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	verses := make([]*Verse, 0, len(r.verses))
	for _, v := range r.verses {
		verses = append(verses, v)
	}
	return verses
}

// UpdateStatus changes the trading status of a verse.
// Used for emergency pausing and resolution.
func (r *Registry) UpdateStatus(id string, status VerseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.verses[id]
	if !exists {
		return fmt.Errorf("verse %s not found", id)
	}

	// Resolved is terminal
	if v.Status == Resolved {
		return fmt.Errorf("cannot change status from Resolved (terminal state)")
	}

	v.Status = status
	return nil
}

// Count returns the total number of registered verses
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.verses)
}

// Exists checks if a verse is registered
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.verses[id]
	return exists
}
