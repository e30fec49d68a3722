package roster

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"raffle/internal/models"
)

var (
	ErrDuplicateName = errors.New("an entry with this name already exists")
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrNotFound      = errors.New("entry not found")
)

// Pool is the ordered list of entrants owned by the host application.
// Names are unique; ids are handed out sequentially.
type Pool struct {
	mu      sync.RWMutex
	entries []models.Entry
	nextID  int
}

// NewPool creates a pool seeded with entries, continuing ids from the highest one.
func NewPool(entries ...models.Entry) *Pool {
	p := &Pool{}
	p.Replace(entries)
	return p
}

// Replace swaps the whole content of the pool, as done by an import.
// Entries loaded this way are not checked for duplicate names.
func (p *Pool) Replace(entries []models.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append([]models.Entry(nil), entries...)
	p.nextID = 1
	for _, e := range p.entries {
		if e.ID >= p.nextID {
			p.nextID = e.ID + 1
		}
	}
}

// Add appends a new entrant with the next sequential id.
func (p *Pool) Add(name string) (models.Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Entry{}, ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexOfName(name) >= 0 {
		return models.Entry{}, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	e := models.Entry{ID: p.nextID, Name: name}
	p.entries = append(p.entries, e)
	p.nextID++
	return e, nil
}

// Insert appends an entry that already carries an id.
func (p *Pool) Insert(e models.Entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexOfName(e.Name) >= 0 {
		return fmt.Errorf("%q: %w", e.Name, ErrDuplicateName)
	}
	p.entries = append(p.entries, e)
	if e.ID >= p.nextID {
		p.nextID = e.ID + 1
	}
	return nil
}

// Delete removes the entries with the given ids and returns how many were removed.
func (p *Pool) Delete(ids ...int) int {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.entries[:0]
	removed := 0
	for _, e := range p.entries {
		if drop[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	return removed
}

// Remove drops a single entrant. It is used by the draw engine in unique mode.
func (p *Pool) Remove(id int) bool {
	return p.Delete(id) == 1
}

// Rename changes the name of an entry, keeping its id and position.
func (p *Pool) Rename(id int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOfID(id)
	if i < 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	if j := p.indexOfName(name); j >= 0 && j != i {
		return fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	p.entries[i].Name = name
	return nil
}

// Get returns the entry with the given id.
func (p *Pool) Get(id int) (models.Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if i := p.indexOfID(id); i >= 0 {
		return p.entries[i], true
	}
	return models.Entry{}, false
}

// Snapshot returns a copy of the entries in insertion order.
func (p *Pool) Snapshot() []models.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]models.Entry(nil), p.entries...)
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// NextID is the id the next added entry will get.
func (p *Pool) NextID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextID
}

func (p *Pool) indexOfName(name string) int {
	for i, e := range p.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (p *Pool) indexOfID(id int) int {
	for i, e := range p.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
