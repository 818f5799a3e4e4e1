package registry

import (
	"context"
	"errors"

	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores one entry document per tenant in the registry
// collection.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{col: db.Collection(document.RegistryCollection)}
}

func (r *MongoRepository) Get(ctx context.Context, tenant string) (*Entry, error) {
	var e Entry
	if err := r.col.FindOne(ctx, bson.M{"_id": entryID(tenant)}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *MongoRepository) Add(ctx context.Context, tenant string, d Descriptor, defaults []Descriptor) error {
	id := entryID(tenant)
	if defaults == nil {
		defaults = []Descriptor{}
	}
	ensure := bson.M{"$setOnInsert": bson.M{"tenant": tenant, "collections": defaults}}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, ensure, options.Update().SetUpsert(true)); err != nil {
		// a concurrent upsert of the same entry won the insert
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}

	filter := bson.M{"_id": id, "collections.name": bson.M{"$ne": d.Name}}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$push": bson.M{"collections": d}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *MongoRepository) Remove(ctx context.Context, tenant, name string) error {
	update := bson.M{"$pull": bson.M{"collections": bson.M{"name": name}}}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": entryID(tenant)}, update)
	return err
}
