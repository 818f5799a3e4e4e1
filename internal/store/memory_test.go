package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wanzdb/wanzdb/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func doc(kv ...interface{}) document.Document {
	d := document.Document{}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1])
	}
	return d
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertOne(ctx, "notes", doc("_id", "a", "text", "hi")))
	require.ErrorIs(t, s.InsertOne(ctx, "notes", doc("_id", "a")), ErrDuplicateKey)

	got, err := s.FindOne(ctx, "notes", bson.M{"_id": "a"})
	require.NoError(t, err)
	v, _ := got.Get("text")
	require.Equal(t, "hi", v)

	// returned documents are copies
	got.Set("text", "changed")
	again, err := s.FindOne(ctx, "notes", bson.M{"_id": "a"})
	require.NoError(t, err)
	v, _ = again.Get("text")
	require.Equal(t, "hi", v)

	upd, err := s.UpdateOne(ctx, "notes", bson.M{"_id": "a"}, bson.D{{Key: "text", Value: "new"}, {Key: "extra", Value: true}})
	require.NoError(t, err)
	require.Equal(t, "extra", upd[len(upd)-1].Key)

	_, err = s.UpdateOne(ctx, "notes", bson.M{"_id": "missing"}, bson.D{{Key: "x", Value: 1}})
	require.ErrorIs(t, err, ErrNoDocument)

	n, err := s.DeleteOne(ctx, "notes", bson.M{"_id": "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = s.DeleteOne(ctx, "notes", bson.M{"_id": "a"})
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	_, err = s.FindOne(ctx, "notes", bson.M{"_id": "a"})
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestMemoryStoreInsertManyIsUnordered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.InsertOne(ctx, "c", doc("_id", "2")))

	stored, err := s.InsertMany(ctx, "c", []document.Document{
		doc("_id", "1"), doc("_id", "2"), doc("_id", "3"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, stored)

	total, err := s.Count(ctx, "c", bson.M{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
}

func TestMemoryStoreFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()
	_, err := s.InsertMany(ctx, "people", []document.Document{
		doc("_id", "1", "name", "alice", "age", int64(30), "tags", bson.A{"a", "b"}, "deletedAt", nil),
		doc("_id", "2", "name", "Bob", "age", 17.5, "address", bson.D{{Key: "city", Value: "Oslo"}}),
		doc("_id", "3", "name", "Anna", "age", int32(18), "deletedAt", primitive.NewDateTimeFromTime(now)),
	})
	require.NoError(t, err)

	ids := func(filter bson.M) []string {
		t.Helper()
		docs, err := s.Find(ctx, "people", filter, FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}})
		require.NoError(t, err)
		out := []string{}
		for _, d := range docs {
			out = append(out, d.ID())
		}
		return out
	}

	require.Equal(t, []string{"1", "3"}, ids(bson.M{"age": bson.D{{Key: "$gt", Value: 17.5}}}))
	require.Equal(t, []string{"2", "3"}, ids(bson.M{"age": bson.M{"$lte": 18}}))
	require.Equal(t, []string{"1", "3"}, ids(bson.M{"name": bson.D{{Key: "$regex", Value: "^a"}, {Key: "$options", Value: "i"}}}))
	require.Equal(t, []string{"1"}, ids(bson.M{"name": bson.D{{Key: "$regex", Value: "^a"}, {Key: "$options", Value: ""}}}))
	require.Equal(t, []string{"1", "2"}, ids(bson.M{"deletedAt": nil}))
	require.Equal(t, []string{"3"}, ids(bson.M{"deletedAt": bson.M{"$ne": nil}}))
	require.Equal(t, []string{"1"}, ids(bson.M{"tags": "b"}))
	require.Equal(t, []string{"2", "3"}, ids(bson.M{"name": bson.M{"$in": bson.A{"Bob", "Anna"}}}))
	require.Equal(t, []string{"2"}, ids(bson.M{"address.city": "Oslo"}))
	require.Equal(t, []string{"1", "3"}, ids(bson.M{"name": bson.M{"$ne": "Bob"}}))

	_, err = s.Find(ctx, "people", bson.M{"name": bson.M{"$where": "1"}}, FindOptions{})
	require.Error(t, err)
}

func TestMemoryStoreSortSkipLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, n := range []int64{5, 1, 4, 2, 3} {
		require.NoError(t, s.InsertOne(ctx, "n", doc("_id", string(rune('a'+i)), "n", n)))
	}
	docs, err := s.Find(ctx, "n", bson.M{}, FindOptions{Sort: bson.D{{Key: "n", Value: -1}}, Skip: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	first, _ := docs[0].Get("n")
	second, _ := docs[1].Get("n")
	require.Equal(t, int64(4), first)
	require.Equal(t, int64(3), second)

	docs, err = s.Find(ctx, "n", bson.M{}, FindOptions{Skip: 10})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestMemoryStoreCollections(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "x"))
	require.ErrorIs(t, s.CreateCollection(ctx, "x"), ErrCollectionExists)

	_, err := s.InsertMany(ctx, "x", []document.Document{doc("_id", "1", "_uid", "u1"), doc("_id", "2", "_uid", "u2")})
	require.NoError(t, err)
	n, err := s.DeleteMany(ctx, "x", bson.M{"_uid": "u1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	left, err := s.Count(ctx, "x", bson.M{})
	require.NoError(t, err)
	require.EqualValues(t, 1, left)
	require.NoError(t, s.Ping(ctx))
}
