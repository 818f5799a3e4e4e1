// Package store is the backing document store used by the data layer.
//
// Every implementation works on named collections of document.Document values
// and understands the same filter dialect: field equality (null also matches a
// missing field) and the operators $gt, $gte, $lt, $lte, $ne, $in and $regex
// with $options.
package store

import (
	"context"
	"errors"

	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNoDocument       = errors.New("no document matches the filter")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrCollectionExists = errors.New("collection already exists")
)

// FindOptions controls ordering and paging of Find.
type FindOptions struct {
	Skip  int64
	Limit int64 // 0 means no limit
	Sort  bson.D
}

// Store is the capability the data layer needs from a document database.
// Single-document operations are atomic; nothing spans documents.
type Store interface {
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]document.Document, error)
	// FindOne returns ErrNoDocument when nothing matches.
	FindOne(ctx context.Context, collection string, filter bson.M) (document.Document, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	// InsertOne returns ErrDuplicateKey when the _id is taken.
	InsertOne(ctx context.Context, collection string, doc document.Document) error
	// InsertMany is unordered: a failing element does not stop the rest.
	// It returns the number of stored documents.
	InsertMany(ctx context.Context, collection string, docs []document.Document) (int, error)
	// UpdateOne sets the given fields on the first match and returns the
	// updated document, or ErrNoDocument.
	UpdateOne(ctx context.Context, collection string, filter bson.M, set bson.D) (document.Document, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	// CreateCollection returns ErrCollectionExists when the collection is already there.
	CreateCollection(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}
