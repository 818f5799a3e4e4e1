package schema

import (
	"context"
	"errors"
	"sync"

	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection(document.SchemaCollection)}
}

func (r *MongoRepository) Get(ctx context.Context, id, tenant string) (*Descriptor, error) {
	var d Descriptor
	if err := r.col.FindOne(ctx, bson.M{"_id": id, "tenantId": tenant}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *MongoRepository) Upsert(ctx context.Context, d Descriptor) (*Descriptor, error) {
	update := bson.M{
		"$set": bson.M{
			"collectionName": d.CollectionName,
			"fields":         d.Fields,
			"updatedAt":      d.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": d.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out Descriptor
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": d.ID, "tenantId": d.TenantID}, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errTenantMismatch mirrors the duplicate-key error the Mongo upsert hits when
// the id is held by another tenant.
var errTenantMismatch = errors.New("schema id belongs to another tenant")

type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]Descriptor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Descriptor)}
}

func (r *MemoryRepository) Get(ctx context.Context, id, tenant string) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok || d.TenantID != tenant {
		return nil, nil
	}
	d.Fields = append([]FieldDef(nil), d.Fields...)
	return &d, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, d Descriptor) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.items[d.ID]; ok {
		if prev.TenantID != d.TenantID {
			return nil, errTenantMismatch
		}
		d.CreatedAt = prev.CreatedAt
	}
	d.Fields = append([]FieldDef{}, d.Fields...)
	r.items[d.ID] = d
	out := d
	return &out, nil
}
