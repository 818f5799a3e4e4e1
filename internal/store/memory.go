package store

import (
	"context"
	"sort"
	"sync"

	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process Store used by unit tests and as the fallback
// when no MongoDB is configured. Documents are copied on the way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]document.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]document.Document)}
}

func (m *MemoryStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []document.Document{}
	for _, d := range m.collections[collection] {
		ok, err := Matches(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d.Clone())
		}
	}
	if len(opts.Sort) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, key := range opts.Sort {
				a, _ := lookup(bson.D(out[i]), key.Key)
				b, _ := lookup(bson.D(out[j]), key.Key)
				c := sortCompare(a, b)
				if c == 0 {
					continue
				}
				if direction(key.Value) < 0 {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(out)) {
			return []document.Document{}, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(out)) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) FindOne(ctx context.Context, collection string, filter bson.M) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, err := m.indexOf(collection, filter)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, ErrNoDocument
	}
	return m.collections[collection][i].Clone(), nil
}

func (m *MemoryStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.collections[collection] {
		ok, err := Matches(d, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertOne(ctx context.Context, collection string, doc document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(collection, doc)
}

func (m *MemoryStore) InsertMany(ctx context.Context, collection string, docs []document.Document) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := 0
	for _, d := range docs {
		if err := m.insertLocked(collection, d); err == nil {
			stored++
		}
	}
	return stored, nil
}

func (m *MemoryStore) insertLocked(collection string, doc document.Document) error {
	doc = doc.Clone()
	id, ok := doc.Get(document.FieldID)
	if !ok || id == nil {
		id = primitive.NewObjectID().Hex()
		doc = append(document.Document{{Key: document.FieldID, Value: id}}, doc...)
	}
	for _, d := range m.collections[collection] {
		if existing, _ := d.Get(document.FieldID); valueEqual(existing, id) {
			return ErrDuplicateKey
		}
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return nil
}

func (m *MemoryStore) UpdateOne(ctx context.Context, collection string, filter bson.M, set bson.D) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.indexOf(collection, filter)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, ErrNoDocument
	}
	d := m.collections[collection][i]
	for _, e := range set {
		d.Set(e.Key, document.CloneValue(e.Value))
	}
	m.collections[collection][i] = d
	return d.Clone(), nil
}

func (m *MemoryStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.indexOf(collection, filter)
	if err != nil || i < 0 {
		return 0, err
	}
	docs := m.collections[collection]
	m.collections[collection] = append(docs[:i:i], docs[i+1:]...)
	return 1, nil
}

func (m *MemoryStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []document.Document
	var n int64
	for _, d := range m.collections[collection] {
		ok, err := Matches(d, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, d)
	}
	if _, exists := m.collections[collection]; exists {
		m.collections[collection] = kept
	}
	return n, nil
}

func (m *MemoryStore) CreateCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return ErrCollectionExists
	}
	m.collections[name] = []document.Document{}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) indexOf(collection string, filter bson.M) (int, error) {
	for i, d := range m.collections[collection] {
		ok, err := Matches(d, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func direction(v interface{}) int {
	switch t := normalize(v).(type) {
	case float64:
		if t < 0 {
			return -1
		}
	}
	return 1
}
