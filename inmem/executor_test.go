package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/inmem"
	"github.com/autom8ter/docq/testutil"
)

func TestExecutor(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	e := inmem.New(inmem.WithLogger(docq.NewZapLogger(zap.New(core))))
	e.Register(testutil.Person())

	t.Run("insert", func(t *testing.T) {
		for i, age := range []int{30, 10, 20} {
			doc := testutil.NewPersonDoc(map[string]any{"age": age, "name": []string{"a", "b", "c"}[i]})
			require.NoError(t, e.Insert(ctx, "person", doc))
		}
		assert.Equal(t, 3, e.Len("person"))
		assert.Equal(t, 0, e.Len("blog_post"))
		assert.Equal(t, 3, logs.FilterMessage("inserted documents").Len())
	})
	t.Run("generated primary keys", func(t *testing.T) {
		doc := testutil.NewPersonDoc(map[string]any{"name": "d", "age": 50})
		require.NoError(t, doc.Del("_id"))
		require.NoError(t, e.Insert(ctx, "person", doc))
		assert.False(t, doc.Exists("_id"))

		cursor, err := e.Find(ctx, "person", docq.Fragment{"name": "d"}, docq.FindOptions{})
		require.NoError(t, err)
		docs, err := docq.Collect(ctx, cursor)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.NotEmpty(t, docs[0].GetString("_id"))
	})
	t.Run("duplicate primary key", func(t *testing.T) {
		doc := testutil.NewPersonDoc(map[string]any{"_id": "dup", "name": "dup", "age": 99})
		require.NoError(t, e.Insert(ctx, "person", doc))
		err := e.Insert(ctx, "person", doc)
		assert.True(t, errors.Is(err, errors.Conflict))
	})
	t.Run("unknown collection", func(t *testing.T) {
		err := e.Insert(ctx, "nope", docq.NewDocument())
		assert.True(t, errors.Is(err, errors.NotFound))
		_, err = e.Find(ctx, "nope", docq.Fragment{}, docq.FindOptions{})
		assert.True(t, errors.Is(err, errors.NotFound))
	})
	t.Run("find", func(t *testing.T) {
		cursor, err := e.Find(ctx, "person", docq.Fragment{"age": docq.OperatorMap{"$exists": true, "$lte": 30}}, docq.FindOptions{
			OrderBy: []docq.OrderBy{{Field: "age", Direction: docq.DESC}},
			Skip:    1,
			Limit:   1,
			Select:  []string{"name"},
		})
		require.NoError(t, err)
		defer cursor.Close()
		docs, err := docq.Collect(ctx, cursor)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "c", docs[0].GetString("name"))
		assert.True(t, docs[0].Exists("_id"))
		assert.False(t, docs[0].Exists("age"))

		cursor.Rewind()
		assert.True(t, cursor.Next(ctx))
		assert.Equal(t, "c", cursor.Document().GetString("name"))
		assert.False(t, cursor.Next(ctx))
	})
	t.Run("missing values order first", func(t *testing.T) {
		doc := testutil.NewPersonDoc(map[string]any{"name": "e"})
		require.NoError(t, doc.Del("age"))
		require.NoError(t, e.Insert(ctx, "person", doc))
		cursor, err := e.Find(ctx, "person", docq.Fragment{"name": docq.OperatorMap{"$in": []any{"a", "b", "c", "e"}}}, docq.FindOptions{
			OrderBy: []docq.OrderBy{{Field: "age", Direction: docq.ASC}},
		})
		require.NoError(t, err)
		docs, err := docq.Collect(ctx, cursor)
		require.NoError(t, err)
		names := make([]string, 0, len(docs))
		for _, d := range docs {
			names = append(names, d.GetString("name"))
		}
		assert.Equal(t, []string{"e", "b", "c", "a"}, names)
	})
	t.Run("closed cursors", func(t *testing.T) {
		cursor, err := e.Find(ctx, "person", docq.Fragment{}, docq.FindOptions{})
		require.NoError(t, err)
		require.NoError(t, cursor.Close())
		assert.False(t, cursor.Next(ctx))
	})
	t.Run("cancelled context", func(t *testing.T) {
		cursor, err := e.Find(ctx, "person", docq.Fragment{}, docq.FindOptions{})
		require.NoError(t, err)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.False(t, cursor.Next(cctx))
		assert.ErrorIs(t, cursor.Err(), context.Canceled)
	})
	t.Run("invalid options", func(t *testing.T) {
		_, err := e.Find(ctx, "person", docq.Fragment{}, docq.FindOptions{Limit: -1})
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("match errors stop the cursor", func(t *testing.T) {
		cursor, err := e.Find(ctx, "person", docq.Fragment{"location": docq.OperatorMap{"$near": []any{1, 2}}}, docq.FindOptions{})
		require.NoError(t, err)
		_, err = docq.Collect(ctx, cursor)
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
}

func TestExecutorValidation(t *testing.T) {
	ctx := context.Background()
	e := inmem.New(inmem.WithValidation())
	e.Register(testutil.Person())

	require.NoError(t, e.Insert(ctx, "person", testutil.NewPersonDoc(nil)))
	invalid := testutil.NewPersonDoc(map[string]any{"age": -1})
	err := e.Insert(ctx, "person", invalid)
	assert.True(t, errors.Is(err, errors.Validation))
	assert.Equal(t, 1, e.Len("person"))
}

func TestExecutorInsertBatch(t *testing.T) {
	ctx := context.Background()
	t.Run("duplicate primary keys in one batch", func(t *testing.T) {
		e := inmem.New()
		e.Register(testutil.Person())
		err := e.Insert(ctx, "person",
			testutil.NewPersonDoc(map[string]any{"_id": 1}),
			testutil.NewPersonDoc(map[string]any{"_id": 2}),
			testutil.NewPersonDoc(map[string]any{"_id": 1}),
		)
		assert.True(t, errors.Is(err, errors.Conflict))
		assert.Equal(t, 0, e.Len("person"))
	})
	t.Run("duplicate of a stored primary key", func(t *testing.T) {
		e := inmem.New()
		e.Register(testutil.Person())
		require.NoError(t, e.Insert(ctx, "person", testutil.NewPersonDoc(map[string]any{"_id": "a"})))
		err := e.Insert(ctx, "person",
			testutil.NewPersonDoc(map[string]any{"_id": "b"}),
			testutil.NewPersonDoc(map[string]any{"_id": "a"}),
		)
		assert.True(t, errors.Is(err, errors.Conflict))
		assert.Equal(t, 1, e.Len("person"))
	})
	t.Run("invalid document in a batch", func(t *testing.T) {
		e := inmem.New(inmem.WithValidation())
		e.Register(testutil.Person())
		err := e.Insert(ctx, "person",
			testutil.NewPersonDoc(nil),
			testutil.NewPersonDoc(map[string]any{"age": -1}),
		)
		assert.True(t, errors.Is(err, errors.Validation))
		assert.Equal(t, 0, e.Len("person"))
	})
}

func TestExecutorUpdate(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	e := inmem.New(inmem.WithValidation(), inmem.WithLogger(docq.NewZapLogger(zap.New(core))))
	e.Register(testutil.Person())
	require.NoError(t, e.Insert(ctx, "person",
		testutil.NewPersonDoc(map[string]any{"_id": "1", "age": 20, "friend": map[string]any{"name": "x", "age": 21}}),
		testutil.NewPersonDoc(map[string]any{"_id": "2", "age": 60, "friend": map[string]any{"name": "y", "age": 61}}),
		testutil.NewPersonDoc(map[string]any{"_id": "3", "age": 70, "friend": map[string]any{"name": "z", "age": 71}}),
	))
	find := func(t *testing.T, id string) *docq.Document {
		cursor, err := e.Find(ctx, "person", docq.Fragment{"_id": id}, docq.FindOptions{})
		require.NoError(t, err)
		docs, err := docq.Collect(ctx, cursor)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		return docs[0]
	}

	t.Run("merge into matching documents", func(t *testing.T) {
		patch, err := docq.NewDocumentFrom(map[string]any{"_id": "other", "friend": map[string]any{"name": "bob"}})
		require.NoError(t, err)
		n, err := e.Update(ctx, "person", docq.Fragment{"age": docq.OperatorMap{"$gte": 50}}, patch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, patch.Exists("_id"))

		for _, id := range []string{"2", "3"} {
			doc := find(t, id)
			assert.Equal(t, "bob", doc.GetString("friend.name"))
			assert.True(t, doc.Exists("friend.age"))
		}
		assert.Equal(t, "x", find(t, "1").GetString("friend.name"))
		assert.Equal(t, 3, e.Len("person"))

		updated := logs.FilterMessage("updated documents").All()
		require.Len(t, updated, 1)
		assert.Equal(t, []any{"2", "3"}, updated[0].ContextMap()["ids"])
	})
	t.Run("invalid merge updates nothing", func(t *testing.T) {
		patch, err := docq.NewDocumentFrom(map[string]any{"age": -1})
		require.NoError(t, err)
		_, err = e.Update(ctx, "person", docq.Fragment{}, patch)
		assert.True(t, errors.Is(err, errors.Validation))
		assert.Equal(t, float64(20), find(t, "1").Get("age"))
	})
	t.Run("unknown collection", func(t *testing.T) {
		_, err := e.Update(ctx, "nope", docq.Fragment{}, docq.NewDocument())
		assert.True(t, errors.Is(err, errors.NotFound))
	})
}
