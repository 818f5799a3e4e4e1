package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wanzdb/wanzdb/internal/apperr"
	"github.com/wanzdb/wanzdb/internal/document"
	"github.com/wanzdb/wanzdb/internal/query"
	"github.com/wanzdb/wanzdb/internal/store"
	"github.com/wanzdb/wanzdb/pkg/metrics"
	"go.mongodb.org/mongo-driver/bson"
)

func newTestManager() *Manager {
	m := New(store.NewMemoryStore())
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m
}

func mustDoc(t *testing.T, js string) document.Document {
	t.Helper()
	var d document.Document
	require.NoError(t, d.UnmarshalJSON([]byte(js)))
	return d
}

func listIDs(t *testing.T, m *Manager, tenant, col string, trash bool) []string {
	t.Helper()
	var (
		docs []document.Document
		err  error
	)
	if trash {
		docs, err = m.ListTrash(context.Background(), tenant, col)
	} else {
		q, perr := query.Parse(url.Values{})
		require.NoError(t, perr)
		docs, err = m.FindMany(context.Background(), tenant, col, q)
	}
	require.NoError(t, err)
	ids := []string{}
	for _, d := range docs {
		ids = append(ids, d.ID())
	}
	return ids
}

func TestInsertTagsDocument(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	doc, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"text":"hi","_uid":"someone-else","deletedAt":"x"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID())
	uid, _ := doc.Get("_uid")
	assert.Equal(t, "u1", uid)
	deletedAt, ok := doc.Get("deletedAt")
	assert.True(t, ok)
	assert.Nil(t, deletedAt)
	created, _ := doc.Get("createdAt")
	updated, _ := doc.Get("updatedAt")
	assert.Equal(t, created, updated)
	assert.Equal(t, "_id", doc[0].Key)
	assert.Equal(t, "text", doc[1].Key)

	assert.Equal(t, []string{doc.ID()}, listIDs(t, m, "u1", "notes", false))
	assert.Empty(t, listIDs(t, m, "u1", "notes", true))
}

func TestInsertKeepsCallerID(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	doc, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"n1","text":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "n1", doc.ID())

	_, err = m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"n1"}`))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":5}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	doc, err = m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":""}`))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID())
}

func TestInsertRejectsBadTarget(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	_, err := m.Insert(ctx, "", "notes", document.Document{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = m.Insert(ctx, "u1", "_meta_collections_list", document.Document{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = m.Insert(ctx, "u1", "bad name", document.Document{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTenantIsolation(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	a, err := m.Insert(ctx, "A", "notes", mustDoc(t, `{"_id":"a1","text":"same"}`))
	require.NoError(t, err)
	_, err = m.Insert(ctx, "A", "notes", mustDoc(t, `{"_id":"a2","text":"same"}`))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "A", "notes", "a2", false))

	assert.Empty(t, listIDs(t, m, "B", "notes", false))
	assert.Empty(t, listIDs(t, m, "B", "notes", true))

	_, err = m.FindByID(ctx, "B", "notes", a.ID())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	found, err := m.FindOne(ctx, "B", "notes", bson.M{"text": "same"})
	require.NoError(t, err)
	assert.Nil(t, found)

	// B may not touch A's document either
	_, err = m.Update(ctx, "B", "notes", "a1", mustDoc(t, `{"text":"x"}`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "B", "notes", "a1", true), apperr.ErrNotFound)

	// a filter naming another tenant is overridden
	q, err := query.Parse(url.Values{"_uid": {"A"}})
	require.NoError(t, err)
	docs, err := m.FindMany(ctx, "B", "notes", q)
	require.NoError(t, err)
	assert.Empty(t, docs)

	found, err = m.FindOne(ctx, "A", "notes", bson.M{"text": "same"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a1", found.ID())
}

func TestSoftDeleteAndRestore(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	doc, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"text":"hi"}`))
	require.NoError(t, err)
	id := doc.ID()

	require.NoError(t, m.Delete(ctx, "u1", "notes", id, false))
	assert.Empty(t, listIDs(t, m, "u1", "notes", false))
	assert.Equal(t, []string{id}, listIDs(t, m, "u1", "notes", true))

	_, err = m.FindByID(ctx, "u1", "notes", id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, m.Restore(ctx, "u1", "notes", id))
	assert.Equal(t, []string{id}, listIDs(t, m, "u1", "notes", false))
	assert.Empty(t, listIDs(t, m, "u1", "notes", true))

	restored, err := m.FindByID(ctx, "u1", "notes", id)
	require.NoError(t, err)
	deletedAt, _ := restored.Get("deletedAt")
	assert.Nil(t, deletedAt)

	// restoring an active or unknown document is a no-op
	require.NoError(t, m.Restore(ctx, "u1", "notes", id))
	require.NoError(t, m.Restore(ctx, "u1", "notes", "nope"))

	assert.ErrorIs(t, m.Delete(ctx, "u1", "notes", "nope", false), apperr.ErrNotFound)
}

func TestPermanentDelete(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	active, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"active"}`))
	require.NoError(t, err)
	trashed, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"trashed"}`))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "u1", "notes", trashed.ID(), false))

	for _, id := range []string{active.ID(), trashed.ID()} {
		require.NoError(t, m.Delete(ctx, "u1", "notes", id, true))
		assert.ErrorIs(t, m.Delete(ctx, "u1", "notes", id, true), apperr.ErrNotFound)
	}
	assert.Empty(t, listIDs(t, m, "u1", "notes", false))
	assert.Empty(t, listIDs(t, m, "u1", "notes", true))
}

func TestEmptyTrashIsPerTenant(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	for _, tenant := range []string{"A", "B"} {
		for i := 0; i < 2; i++ {
			d, err := m.Insert(ctx, tenant, "notes", mustDoc(t, fmt.Sprintf(`{"_id":"%s-%d"}`, tenant, i)))
			require.NoError(t, err)
			require.NoError(t, m.Delete(ctx, tenant, "notes", d.ID(), false))
		}
	}
	_, err := m.Insert(ctx, "A", "notes", mustDoc(t, `{"_id":"A-live"}`))
	require.NoError(t, err)

	n, err := m.EmptyTrash(ctx, "A", "notes")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Empty(t, listIDs(t, m, "A", "notes", true))
	assert.Equal(t, []string{"A-live"}, listIDs(t, m, "A", "notes", false))
	assert.ElementsMatch(t, []string{"B-0", "B-1"}, listIDs(t, m, "B", "notes", true))
}

func TestListTrashNewestFirstAndCapped(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	for i := 0; i < TrashPageSize+5; i++ {
		id := fmt.Sprintf("d%02d", i)
		_, err := m.Insert(ctx, "u1", "notes", mustDoc(t, fmt.Sprintf(`{"_id":"%s"}`, id)))
		require.NoError(t, err)
		require.NoError(t, m.Delete(ctx, "u1", "notes", id, false))
	}
	ids := listIDs(t, m, "u1", "notes", true)
	require.Len(t, ids, TrashPageSize)
	assert.Equal(t, fmt.Sprintf("d%02d", TrashPageSize+4), ids[0])
}

func TestUpdate(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	doc, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"n1","text":"a"}`))
	require.NoError(t, err)
	created, _ := doc.Get("createdAt")

	updated, err := m.Update(ctx, "u1", "notes", "n1", mustDoc(t,
		`{"text":"b","_id":"hijack","_uid":"u2","pinned":true,"createdAt":"1999-01-01T00:00:00Z","deletedAt":"1999-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	createdAfter, _ := updated.Get("createdAt")
	assert.Equal(t, created, createdAfter)
	deleted, _ := updated.Get("deletedAt")
	assert.Nil(t, deleted)
	assert.Equal(t, "n1", updated.ID())
	uid, _ := updated.Get("_uid")
	assert.Equal(t, "u1", uid)
	text, _ := updated.Get("text")
	assert.Equal(t, "b", text)
	pinned, _ := updated.Get("pinned")
	assert.Equal(t, true, pinned)
	upd, _ := updated.Get("updatedAt")
	assert.NotEqual(t, created, upd)

	_, err = m.Update(ctx, "u1", "notes", "missing", mustDoc(t, `{"text":"b"}`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.Update(ctx, "u1", "notes", "n1", mustDoc(t, `{"$set":{"a":1}}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestInsertManyUnordered(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	_, err := m.Insert(ctx, "u1", "notes", mustDoc(t, `{"_id":"dup"}`))
	require.NoError(t, err)

	batch := []document.Document{
		mustDoc(t, `{"_id":"x1"}`),
		mustDoc(t, `{"_id":"dup"}`),
		mustDoc(t, `{"_id":"x2"}`),
		mustDoc(t, `{"text":"no id"}`),
		mustDoc(t, `{"_id":"x3"}`),
	}
	n, err := m.InsertMany(ctx, "u1", "notes", batch)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, id := range []string{"x1", "x2", "x3"} {
		_, err := m.FindByID(ctx, "u1", "notes", id)
		assert.NoError(t, err, id)
	}
	assert.Len(t, listIDs(t, m, "u1", "notes", false), 5)

	n, err = m.InsertMany(ctx, "u1", "notes", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFindManyFiltersAndPages(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	for i, name := range []string{"alice", "Bob", "Andy", "carol"} {
		_, err := m.Insert(ctx, "u1", "people", mustDoc(t, fmt.Sprintf(`{"_id":"p%d","name":%q,"age":%d}`, i, name, 15+i*3)))
		require.NoError(t, err)
	}

	q, err := query.Parse(url.Values{"age": {`{"gt":18}`}, "sort": {"age"}})
	require.NoError(t, err)
	docs, err := m.FindMany(ctx, "u1", "people", q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p2", docs[0].ID())
	assert.Equal(t, "p3", docs[1].ID())

	q, err = query.Parse(url.Values{"name": {`{"regex":"^A"}`}, "sort": {"_id"}})
	require.NoError(t, err)
	docs, err = m.FindMany(ctx, "u1", "people", q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p0", docs[0].ID())
	assert.Equal(t, "p2", docs[1].ID())

	// default sort is newest first
	q, err = query.Parse(url.Values{"limit": {"2"}, "page": {"2"}})
	require.NoError(t, err)
	docs, err = m.FindMany(ctx, "u1", "people", q)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p1", docs[0].ID())
	assert.Equal(t, "p0", docs[1].ID())
}

func TestOperationsAreCounted(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.DocumentOperations.WithLabelValues("find_by_id", "not_found"))
	_, err := m.FindByID(ctx, "u1", "notes", "missing")
	require.Error(t, err)
	after := testutil.ToFloat64(metrics.DocumentOperations.WithLabelValues("find_by_id", "not_found"))
	assert.Equal(t, before+1, after)
}
