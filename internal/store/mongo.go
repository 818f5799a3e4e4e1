package store

import (
	"context"
	"errors"
	"time"

	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/pkg/logger"
	"github.com/wanzdb/wanzdb/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// codeNamespaceExists is returned by the server for create on an existing collection.
const codeNamespaceExists = 48

// MongoStore implements Store over one MongoDB database. Documents travel as
// bson.D so field order survives the round trip.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]document.Document, error) {
	defer observe("find", time.Now())
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []document.Document{}
	for cur.Next(ctx) {
		var d bson.D
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, document.Document(d))
	}
	return out, cur.Err()
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter bson.M) (document.Document, error) {
	defer observe("find_one", time.Now())
	var d bson.D
	if err := s.db.Collection(collection).FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return document.Document(d), nil
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	defer observe("count", time.Now())
	return s.db.Collection(collection).CountDocuments(ctx, filter)
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc document.Document) error {
	defer observe("insert_one", time.Now())
	if _, err := s.db.Collection(collection).InsertOne(ctx, bson.D(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *MongoStore) InsertMany(ctx context.Context, collection string, docs []document.Document) (int, error) {
	defer observe("insert_many", time.Now())
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = bson.D(d)
	}
	res, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(res.InsertedIDs), nil
	}
	// unordered inserts report per-element failures; everything else was stored
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError == nil && len(bwe.WriteErrors) > 0 {
		return len(docs) - len(bwe.WriteErrors), nil
	}
	return 0, err
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter bson.M, set bson.D) (document.Document, error) {
	defer observe("update_one", time.Now())
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d bson.D
	err := s.db.Collection(collection).FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return document.Document(d), nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	defer observe("delete_one", time.Now())
	res, err := s.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	defer observe("delete_many", time.Now())
	res, err := s.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CreateCollection provisions the collection and its tenant/visibility index.
func (s *MongoStore) CreateCollection(ctx context.Context, name string) error {
	defer observe("create_collection", time.Now())
	if err := s.db.CreateCollection(ctx, name); err != nil {
		var ce mongo.CommandError
		if errors.As(err, &ce) && (ce.Code == codeNamespaceExists || ce.Name == "NamespaceExists") {
			return ErrCollectionExists
		}
		return err
	}
	idx := mongo.IndexModel{Keys: bson.D{{Key: document.FieldUID, Value: 1}, {Key: document.FieldDeletedAt, Value: 1}}}
	if _, err := s.db.Collection(name).Indexes().CreateOne(ctx, idx); err != nil {
		logger.Warnf("collection %s: creating tenant index failed: %v", name, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func observe(op string, start time.Time) {
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
