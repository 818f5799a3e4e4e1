package registry

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	TypeSystem = "system"
	TypeUser   = "user"
)

// ErrDuplicate is returned by Repository.Add when the tenant already has a
// collection with that name.
var ErrDuplicate = errors.New("collection already registered")

// Descriptor describes one collection visible to a tenant. DocsCount is
// computed on read and never stored.
type Descriptor struct {
	Name      string     `bson:"name" json:"name"`
	Type      string     `bson:"type" json:"type"`
	CreatedAt *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	DocsCount int64      `bson:"-" json:"docsCount"`
}

// Entry is the stored catalog of one tenant.
type Entry struct {
	ID          string       `bson:"_id"`
	Tenant      string       `bson:"tenant"`
	Collections []Descriptor `bson:"collections"`
}

func entryID(tenant string) string { return "registry:" + tenant }

// Defaults are the collections a tenant sees before creating any.
func Defaults() []Descriptor {
	return []Descriptor{
		{Name: "users", Type: TypeSystem},
		{Name: "logs", Type: TypeSystem},
	}
}

// Repository persists registry entries.
type Repository interface {
	// Get returns nil, nil when the tenant has no entry yet.
	Get(ctx context.Context, tenant string) (*Entry, error)
	// Add appends d to the tenant's entry, creating the entry with defaults
	// first when needed. It returns ErrDuplicate if the name is taken; the
	// check and the append are one atomic step.
	Add(ctx context.Context, tenant string, d Descriptor, defaults []Descriptor) error
	// Remove drops the named descriptor. Missing entries or names are not an error.
	Remove(ctx context.Context, tenant, name string) error
}

// MemoryRepository keeps entries in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*Entry)}
}

func (r *MemoryRepository) Get(ctx context.Context, tenant string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenant]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Collections = append([]Descriptor(nil), e.Collections...)
	return &cp, nil
}

func (r *MemoryRepository) Add(ctx context.Context, tenant string, d Descriptor, defaults []Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenant]
	if !ok {
		e = &Entry{ID: entryID(tenant), Tenant: tenant, Collections: append([]Descriptor(nil), defaults...)}
		r.entries[tenant] = e
	}
	for _, c := range e.Collections {
		if c.Name == d.Name {
			return ErrDuplicate
		}
	}
	d.DocsCount = 0
	e.Collections = append(e.Collections, d)
	return nil
}

func (r *MemoryRepository) Remove(ctx context.Context, tenant, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tenant]
	if !ok {
		return nil
	}
	kept := e.Collections[:0]
	for _, c := range e.Collections {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	e.Collections = kept
	return nil
}
