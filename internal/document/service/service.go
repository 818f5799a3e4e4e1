package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/internal/query"
	"github.com/wanzdb/wanzdb/internal/store"
	"github.com/wanzdb/wanzdb/pkg/logger"
	"github.com/wanzdb/wanzdb/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
)

// TrashPageSize caps the trash listing.
const TrashPageSize = 50

// Service defines the document lifecycle operations used by the handler layer.
// Every operation is scoped to the calling tenant.
type Service interface {
	FindMany(ctx context.Context, tenant, collection string, q query.Query) ([]document.Document, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, tenant, collection string, predicate bson.M) (document.Document, error)
	FindByID(ctx context.Context, tenant, collection, id string) (document.Document, error)
	Insert(ctx context.Context, tenant, collection string, doc document.Document) (document.Document, error)
	InsertMany(ctx context.Context, tenant, collection string, docs []document.Document) (int, error)
	Update(ctx context.Context, tenant, collection, id string, patch document.Document) (document.Document, error)
	Delete(ctx context.Context, tenant, collection, id string, permanent bool) error
	ListTrash(ctx context.Context, tenant, collection string) ([]document.Document, error)
	Restore(ctx context.Context, tenant, collection, id string) error
	EmptyTrash(ctx context.Context, tenant, collection string) (int64, error)
}

type visibility int

const (
	visActive visibility = iota
	visTrashed
	visAny
)

// Manager implements Service on top of a store.Store.
type Manager struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

func New(st store.Store) *Manager {
	return &Manager{
		store: st,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID: uuid.NewString,
	}
}

// scope merges tenant ownership and trash visibility into filter. Every store
// call made by Manager goes through it.
func scope(tenant string, filter bson.M, vis visibility) bson.M {
	out := make(bson.M, len(filter)+2)
	for k, v := range filter {
		out[k] = v
	}
	out[document.FieldUID] = tenant
	switch vis {
	case visActive:
		out[document.FieldDeletedAt] = nil
	case visTrashed:
		out[document.FieldDeletedAt] = bson.M{"$ne": nil}
	default:
		delete(out, document.FieldDeletedAt)
	}
	return out
}

func checkTarget(tenant, collection string) error {
	if strings.TrimSpace(tenant) == "" {
		return apperr.Validation("tenant is required")
	}
	return document.ValidateCollectionName(collection)
}

func record(op string, err error) {
	metrics.DocumentOperations.WithLabelValues(op, apperr.Outcome(err)).Inc()
}

func storeErr(op, collection string, err error) error {
	logger.Errorf("document %s on %s failed: %v", op, collection, err)
	return apperr.Store(err)
}

func (m *Manager) FindMany(ctx context.Context, tenant, collection string, q query.Query) (docs []document.Document, err error) {
	defer func() { record("find_many", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	vis := visActive
	if q.Trash {
		vis = visTrashed
	}
	docs, err = m.store.Find(ctx, collection, scope(tenant, q.Filter, vis), store.FindOptions{
		Skip:  q.Skip,
		Limit: q.Limit,
		Sort:  q.Sort,
	})
	if err != nil {
		return nil, storeErr("find", collection, err)
	}
	return docs, nil
}

func (m *Manager) FindOne(ctx context.Context, tenant, collection string, predicate bson.M) (doc document.Document, err error) {
	defer func() { record("find_one", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	doc, err = m.store.FindOne(ctx, collection, scope(tenant, predicate, visActive))
	if errors.Is(err, store.ErrNoDocument) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find_one", collection, err)
	}
	return doc, nil
}

func (m *Manager) FindByID(ctx context.Context, tenant, collection, id string) (doc document.Document, err error) {
	defer func() { record("find_by_id", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	doc, err = m.store.FindOne(ctx, collection, scope(tenant, bson.M{document.FieldID: id}, visActive))
	if errors.Is(err, store.ErrNoDocument) {
		return nil, apperr.NotFound("document %q not found", id)
	}
	if err != nil {
		return nil, storeErr("find_by_id", collection, err)
	}
	return doc, nil
}

// tag stamps a new document with its id, owner and timestamps. The caller's
// field order is kept after _id.
func (m *Manager) tag(tenant string, in document.Document, now time.Time) (document.Document, error) {
	id := ""
	if v, ok := in.Get(document.FieldID); ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return nil, apperr.Validation("_id must be a string")
		}
		id = s
	}
	if id == "" {
		id = m.newID()
	}
	out := make(document.Document, 0, len(in)+5)
	out = append(out, bson.E{Key: document.FieldID, Value: id})
	for _, e := range in {
		switch e.Key {
		case document.FieldID, document.FieldUID, document.FieldCreatedAt, document.FieldUpdatedAt, document.FieldDeletedAt:
			continue
		}
		out = append(out, bson.E{Key: e.Key, Value: document.CloneValue(e.Value)})
	}
	out.Set(document.FieldUID, tenant)
	out.Set(document.FieldCreatedAt, now)
	out.Set(document.FieldUpdatedAt, now)
	out.Set(document.FieldDeletedAt, nil)
	return out, nil
}

func (m *Manager) Insert(ctx context.Context, tenant, collection string, in document.Document) (doc document.Document, err error) {
	defer func() { record("insert", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	doc, err = m.tag(tenant, in, m.now())
	if err != nil {
		return nil, err
	}
	if err = m.store.InsertOne(ctx, collection, doc); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, apperr.Conflict("document %q already exists", doc.ID())
		}
		return nil, storeErr("insert", collection, err)
	}
	return doc, nil
}

// InsertMany stores every taggable document, skipping the ones that fail, and
// returns how many were stored.
func (m *Manager) InsertMany(ctx context.Context, tenant, collection string, in []document.Document) (n int, err error) {
	defer func() { record("insert_many", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return 0, err
	}
	now := m.now()
	batch := make([]document.Document, 0, len(in))
	for _, d := range in {
		tagged, tagErr := m.tag(tenant, d, now)
		if tagErr != nil {
			logger.Debugf("import into %s: skipping document: %v", collection, tagErr)
			continue
		}
		batch = append(batch, tagged)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	n, err = m.store.InsertMany(ctx, collection, batch)
	if err != nil {
		return 0, storeErr("insert_many", collection, err)
	}
	if n < len(in) {
		logger.Infof("import into %s: stored %d of %d documents", collection, n, len(in))
	}
	return n, nil
}

func (m *Manager) Update(ctx context.Context, tenant, collection, id string, patch document.Document) (doc document.Document, err error) {
	defer func() { record("update", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	set := bson.D{}
	for _, e := range patch {
		if strings.HasPrefix(e.Key, "$") {
			return nil, apperr.Validation("field %q may not start with $", e.Key)
		}
		switch e.Key {
		case document.FieldID, document.FieldUID, document.FieldCreatedAt, document.FieldUpdatedAt, document.FieldDeletedAt:
			continue
		}
		set = append(set, bson.E{Key: e.Key, Value: document.CloneValue(e.Value)})
	}
	set = append(set, bson.E{Key: document.FieldUpdatedAt, Value: m.now()})

	doc, err = m.store.UpdateOne(ctx, collection, scope(tenant, bson.M{document.FieldID: id}, visAny), set)
	if errors.Is(err, store.ErrNoDocument) {
		return nil, apperr.NotFound("document %q not found", id)
	}
	if err != nil {
		return nil, storeErr("update", collection, err)
	}
	return doc, nil
}

// Delete moves the document to the trash, or purges it when permanent is set.
func (m *Manager) Delete(ctx context.Context, tenant, collection, id string, permanent bool) (err error) {
	op := "delete"
	if permanent {
		op = "purge"
	}
	defer func() { record(op, err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return err
	}
	filter := scope(tenant, bson.M{document.FieldID: id}, visAny)

	if permanent {
		n, err := m.store.DeleteOne(ctx, collection, filter)
		if err != nil {
			return storeErr(op, collection, err)
		}
		if n == 0 {
			return apperr.NotFound("document %q not found", id)
		}
		return nil
	}

	_, err = m.store.UpdateOne(ctx, collection, filter, bson.D{{Key: document.FieldDeletedAt, Value: m.now()}})
	if errors.Is(err, store.ErrNoDocument) {
		return apperr.NotFound("document %q not found", id)
	}
	if err != nil {
		return storeErr(op, collection, err)
	}
	return nil
}

func (m *Manager) ListTrash(ctx context.Context, tenant, collection string) (docs []document.Document, err error) {
	defer func() { record("list_trash", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return nil, err
	}
	docs, err = m.store.Find(ctx, collection, scope(tenant, nil, visTrashed), store.FindOptions{
		Limit: TrashPageSize,
		Sort:  bson.D{{Key: document.FieldDeletedAt, Value: -1}},
	})
	if err != nil {
		return nil, storeErr("list_trash", collection, err)
	}
	return docs, nil
}

// Restore brings a trashed document back. Restoring an active or unknown id
// succeeds without changes.
func (m *Manager) Restore(ctx context.Context, tenant, collection, id string) (err error) {
	defer func() { record("restore", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return err
	}
	filter := scope(tenant, bson.M{document.FieldID: id}, visTrashed)
	_, err = m.store.UpdateOne(ctx, collection, filter, bson.D{{Key: document.FieldDeletedAt, Value: nil}})
	if errors.Is(err, store.ErrNoDocument) {
		return nil
	}
	if err != nil {
		return storeErr("restore", collection, err)
	}
	return nil
}

func (m *Manager) EmptyTrash(ctx context.Context, tenant, collection string) (n int64, err error) {
	defer func() { record("empty_trash", err) }()
	if err = checkTarget(tenant, collection); err != nil {
		return 0, err
	}
	n, err = m.store.DeleteMany(ctx, collection, scope(tenant, nil, visTrashed))
	if err != nil {
		return 0, storeErr("empty_trash", collection, err)
	}
	return n, nil
}
