package docq_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/autom8ter/docq"
	"github.com/autom8ter/docq/errors"
	"github.com/autom8ter/docq/testutil"
)

func TestCompile(t *testing.T) {
	person := testutil.Person()
	type testCase struct {
		name    string
		lookups []docq.Lookup
		trees   []docq.Tree
		want    docq.Fragment
	}
	for _, tc := range []testCase{
		{
			name:    "empty",
			lookups: nil,
			want:    docq.Fragment{},
		},
		{
			name:    "equality",
			lookups: []docq.Lookup{docq.L("name", "test"), docq.L("age", 20)},
			want:    docq.Fragment{"name": "test", "age": 20},
		},
		{
			name:    "less than",
			lookups: []docq.Lookup{docq.L("age__lt", 30)},
			want:    docq.Fragment{"age": docq.OperatorMap{"$lt": 30}},
		},
		{
			name:    "range",
			lookups: []docq.Lookup{docq.L("age__gt", 20), docq.L("age__lt", 30)},
			want:    docq.Fragment{"age": docq.OperatorMap{"$gt": 20, "$lt": 30}},
		},
		{
			name:    "scalar drops later lookups",
			lookups: []docq.Lookup{docq.L("age", 20), docq.L("age__gt", 50)},
			want:    docq.Fragment{"age": 20},
		},
		{
			name:    "first operator wins",
			lookups: []docq.Lookup{docq.L("age__lt", 7), docq.L("age__lt", 3)},
			want:    docq.Fragment{"age": docq.OperatorMap{"$lt": 7}},
		},
		{
			name:    "embedded field",
			lookups: []docq.Lookup{docq.L("friend__age__gte", 30)},
			want:    docq.Fragment{"friend.age": docq.OperatorMap{"$gte": 30}},
		},
		{
			name:    "exists",
			lookups: []docq.Lookup{docq.L("name__exists", true), docq.L("age__exists", false)},
			want: docq.Fragment{
				"name": docq.OperatorMap{"$exists": true},
				"age":  docq.OperatorMap{"$exists": false},
			},
		},
		{
			name:    "storage names",
			lookups: []docq.Lookup{docq.L("email", "a@b.c"), docq.L("pk", "abc")},
			want:    docq.Fragment{"emailAddress": "a@b.c", "_id": "abc"},
		},
		{
			name:    "list equality",
			lookups: []docq.Lookup{docq.L("tags", "mongo")},
			want:    docq.Fragment{"tags": "mongo"},
		},
		{
			name:    "array positions",
			lookups: []docq.Lookup{docq.L("tags__0", "db"), docq.L("addresses__1__zip__ne", "10001")},
			want: docq.Fragment{
				"tags.0":                  "db",
				"addresses.1.postal_code": docq.OperatorMap{"$ne": "10001"},
			},
		},
		{
			name:    "membership",
			lookups: []docq.Lookup{docq.L("age__in", []int{20, 30}), docq.L("tags__all", []string{"a", "b"})},
			want: docq.Fragment{
				"age":  docq.OperatorMap{"$in": []any{20, 30}},
				"tags": docq.OperatorMap{"$all": []any{"a", "b"}},
			},
		},
		{
			name:    "negation",
			lookups: []docq.Lookup{docq.L("name__not__iexact", "bob"), docq.L("age__not", 3), docq.L("friend__age__not__gt", 5)},
			want: docq.Fragment{
				"name":       docq.OperatorMap{"$not": docq.Regex{Pattern: "^bob$", Options: "i"}},
				"age":        docq.OperatorMap{"$ne": 3},
				"friend.age": docq.OperatorMap{"$not": docq.OperatorMap{"$gt": 5}},
			},
		},
		{
			name:    "dynamic keys",
			lookups: []docq.Lookup{docq.L("info__lang__code", "en")},
			want:    docq.Fragment{"info.lang.code": "en"},
		},
		{
			name:    "empty tree is the identity",
			lookups: []docq.Lookup{docq.L("age__gte", 18)},
			trees:   []docq.Tree{docq.Q()},
			want:    docq.Fragment{"age": docq.OperatorMap{"$gte": 18}},
		},
		{
			name:  "or with an empty tree",
			trees: []docq.Tree{docq.Or(docq.Q(), docq.Q(docq.L("age__gte", 18)), docq.Q(docq.L("name", "test")))},
			want: docq.Fragment{docq.OrKey: []docq.Fragment{
				{"age": docq.OperatorMap{"$gte": 18}},
				{"name": "test"},
			}},
		},
		{
			name:  "and with an empty tree",
			trees: []docq.Tree{docq.And(docq.Q(), docq.Q(docq.L("age__gte", 18)), docq.Q(docq.L("name", "test")))},
			want:  docq.Fragment{"age": docq.OperatorMap{"$gte": 18}, "name": "test"},
		},
		{
			name:  "and combination",
			trees: []docq.Tree{docq.And(docq.Q(docq.L("age__lt", 7)), docq.Q(docq.L("age__gt", 3)))},
			want:  docq.Fragment{"age": docq.OperatorMap{"$lt": 7, "$gt": 3}},
		},
		{
			name:  "and combination of equality and pattern",
			trees: []docq.Tree{docq.And(docq.Q(docq.L("name", "Bob")), docq.Q(docq.L("name__icontains", "bo")))},
			want:  docq.Fragment{"name": docq.OperatorMap{"$eq": "Bob", "$regex": "bo", "$options": "i"}},
		},
		{
			name:  "and combination of exact and startswith",
			trees: []docq.Tree{docq.And(docq.Q(docq.L("name__startswith", "Bo")), docq.Q(docq.L("name__exact", "Bob")))},
			want:  docq.Fragment{"name": docq.OperatorMap{"$regex": "^Bo", "$eq": "Bob"}},
		},
		{
			name:    "flat lookups distribute into disjunctions",
			lookups: []docq.Lookup{docq.L("name", "bob")},
			trees:   []docq.Tree{docq.Or(docq.Q(docq.L("age__lt", 3)), docq.Q(docq.L("age__gt", 7)))},
			want: docq.Fragment{docq.OrKey: []docq.Fragment{
				{"name": "bob", "age": docq.OperatorMap{"$lt": 3}},
				{"name": "bob", "age": docq.OperatorMap{"$gt": 7}},
			}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := docq.Compile(person, tc.lookups, tc.trees...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f)
		})
	}
}

func TestCompileTree(t *testing.T) {
	compiler := docq.NewCompiler(testutil.Person())
	var (
		gt0      = docq.Q(docq.L("age__gt", 0))
		notExist = docq.Q(docq.L("age__exists", false))
		lt100    = docq.Q(docq.L("age__lt", 100))
		named    = docq.Q(docq.L("name", "bob"))
	)
	t.Run("conflict", func(t *testing.T) {
		_, err := compiler.CompileTree(docq.And(docq.Q(docq.L("age__lt", 7)), docq.Q(docq.L("age__lt", 3))))
		assert.True(t, errors.Is(err, errors.InvalidQuery))
		_, err = compiler.CompileTree(docq.Q(docq.L("name", "a"), docq.L("name", "b")))
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("distinct logical paths sharing a storage path conflict", func(t *testing.T) {
		post := docq.NewCompiler(testutil.BlogPost())
		_, err := post.CompileTree(docq.Q(docq.L("title", "a"), docq.L("pk", "b")))
		assert.True(t, errors.Is(err, errors.InvalidQuery))
		f, err := post.CompileTree(docq.Q(docq.L("title", "a"), docq.L("pk", "a")))
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"_id": "a"}, f)
	})
	t.Run("nested and", func(t *testing.T) {
		f, err := compiler.CompileTree(docq.And(
			docq.Q(docq.L("age__lt", 100), docq.L("age__gt", -100)),
			docq.Q(docq.L("name__ne", "bob"), docq.L("tags__in", []string{"a", "b", "c"})),
		))
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{
			"age":  docq.OperatorMap{"$lt": 100, "$gt": -100},
			"name": docq.OperatorMap{"$ne": "bob"},
			"tags": docq.OperatorMap{"$in": []any{"a", "b", "c"}},
		}, f)
	})
	t.Run("or combination", func(t *testing.T) {
		f, err := compiler.CompileTree(docq.Or(gt0, lt100))
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{docq.OrKey: []docq.Fragment{
			{"age": docq.OperatorMap{"$gt": 0}},
			{"age": docq.OperatorMap{"$lt": 100}},
		}}, f)
	})
	t.Run("and or", func(t *testing.T) {
		f, err := compiler.CompileTree(docq.And(docq.Or(gt0, notExist), lt100))
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{docq.OrKey: []docq.Fragment{
			{"age": docq.OperatorMap{"$gt": 0, "$lt": 100}},
			{"age": docq.OperatorMap{"$exists": false, "$lt": 100}},
		}}, f)
	})
	t.Run("or and or", func(t *testing.T) {
		f, err := compiler.CompileTree(docq.And(docq.Or(gt0, notExist), docq.Or(lt100, named)))
		require.NoError(t, err)
		assert.Equal(t, []docq.Fragment{
			{"age": docq.OperatorMap{"$gt": 0, "$lt": 100}},
			{"age": docq.OperatorMap{"$gt": 0}, "name": "bob"},
			{"age": docq.OperatorMap{"$exists": false, "$lt": 100}},
			{"age": docq.OperatorMap{"$exists": false}, "name": "bob"},
		}, f.Alternatives())
	})
	t.Run("one pattern and one negation per field", func(t *testing.T) {
		_, err := compiler.CompileTree(docq.Q(docq.L("name__startswith", "Gu"), docq.L("name__endswith", "um")))
		assert.True(t, errors.Is(err, errors.InvalidQuery))
		_, err = compiler.CompileTree(docq.Q(docq.L("age__not__gt", 90), docq.L("age__not__lt", 10)))
		assert.True(t, errors.Is(err, errors.InvalidQuery))

		f, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L("name__startswith", "Gu"), docq.L("name__endswith", "um")})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"name": docq.Regex{Pattern: "^Gu"}}, f)
		f, err = compiler.Compile(context.Background(), []docq.Lookup{docq.L("age__not__gt", 90), docq.L("age__not__lt", 10)})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"age": docq.OperatorMap{"$not": docq.OperatorMap{"$gt": 90}}}, f)
	})
	t.Run("empty", func(t *testing.T) {
		f, err := compiler.CompileTree(docq.Q())
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{}, f)
	})
}

func TestCompileRegex(t *testing.T) {
	compiler := docq.NewCompiler(testutil.Person())
	const name = "Guido van Rossum"
	type testCase struct {
		expr    string
		value   any
		matches bool
	}
	for _, tc := range []testCase{
		{"name__contains", "van", true},
		{"name__contains", "Van", false},
		{"name__icontains", "VAN", true},
		{"name__startswith", "Guido", true},
		{"name__startswith", "van", false},
		{"name__istartswith", "guido", true},
		{"name__endswith", "Rossum", true},
		{"name__iendswith", "ROSSUM", true},
		{"name__iexact", "guido VAN rossum", true},
		{"name__iexact", "guido", false},
		{"name__icontains", `[.'Geek`, false},
		{"name__regex", "^Gui.*sum$", true},
	} {
		t.Run(tc.expr+" "+tc.value.(string), func(t *testing.T) {
			key, entry, err := compiler.CompileLookup(docq.L(tc.expr, tc.value))
			require.NoError(t, err)
			assert.Equal(t, "name", key)
			r, ok := entry.(docq.Regex)
			require.True(t, ok)
			re, err := r.Compile()
			require.NoError(t, err)
			assert.Equal(t, tc.matches, re.MatchString(name))
		})
	}
	t.Run("exact", func(t *testing.T) {
		_, entry, err := compiler.CompileLookup(docq.L("name__exact", name))
		require.NoError(t, err)
		assert.Equal(t, name, entry)
	})
	t.Run("compiled patterns", func(t *testing.T) {
		re := regexp.MustCompile(`^Gui`)
		f, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L("name", re)})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"name": re}, f)

		f, err = compiler.Compile(context.Background(), []docq.Lookup{docq.L("name__not", re)})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"name": docq.OperatorMap{"$not": re}}, f)
	})
}

func TestCompileReferences(t *testing.T) {
	post := docq.NewCompiler(testutil.BlogPost())
	guido := testutil.NewPersonDoc(map[string]any{"_id": "guido"})
	tim := testutil.NewPersonDoc(map[string]any{"_id": "tim"})
	ref := func(id string) docq.Ref {
		return docq.Ref{Collection: "person", ID: id}
	}
	f, err := post.Compile(context.Background(), []docq.Lookup{
		docq.L("author", guido),
		docq.L("readers__in", []*docq.Document{guido, tim}),
	})
	require.NoError(t, err)
	assert.Equal(t, docq.Fragment{
		"author":  ref("guido"),
		"readers": docq.OperatorMap{"$in": []any{ref("guido"), ref("tim")}},
	}, f)

	t.Run("custom normalizer", func(t *testing.T) {
		ids := docq.ValueNormalizerFunc(func(field *docq.Field, value any) (any, error) {
			if d, ok := value.(*docq.Document); ok {
				return d.Get("_id"), nil
			}
			return value, nil
		})
		c := docq.NewCompiler(testutil.BlogPost(), docq.WithNormalizer(ids))
		f, err := c.Compile(context.Background(), []docq.Lookup{docq.L("author", guido)})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"author": "guido"}, f)
	})
}

func TestCompileErrors(t *testing.T) {
	compiler := docq.NewCompiler(testutil.Person())
	for name, lookup := range map[string]docq.Lookup{
		"unknown field":     docq.L("nickname", "bob"),
		"unknown sub field": docq.L("friend__nickname", "bob"),
		"unknown operator":  {Path: "age", Operator: "between", Value: 1},
		"bad membership":    docq.L("age__in", 1),
		"bad size":          docq.L("tags__size", "many"),
		"bad regex":         docq.L("name__regex", "("),
	} {
		t.Run(name, func(t *testing.T) {
			f, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L("age", 1), lookup})
			assert.True(t, errors.IsInvalidQuery(err), err)
			assert.Nil(t, f)
		})
	}
	t.Run("unknown field code", func(t *testing.T) {
		_, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L("nickname", "bob")})
		assert.True(t, errors.Is(err, errors.UnknownField))
	})
	t.Run("tree errors", func(t *testing.T) {
		_, err := compiler.Compile(context.Background(), nil, docq.Q(docq.L("nickname", "bob")))
		assert.True(t, errors.IsInvalidQuery(err))
	})
	t.Run("conflict between flat lookups and trees", func(t *testing.T) {
		_, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L("age__lt", 7)}, docq.Q(docq.L("age__lt", 3)))
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
}

func TestCompilerOptions(t *testing.T) {
	t.Run("pk alias", func(t *testing.T) {
		c := docq.NewCompiler(testutil.Person(), docq.WithPKAlias("key"))
		f, err := c.Compile(context.Background(), []docq.Lookup{docq.L("key", "abc")})
		require.NoError(t, err)
		assert.Equal(t, docq.Fragment{"_id": "abc"}, f)
		_, err = c.Compile(context.Background(), []docq.Lookup{docq.L("pk", "abc")})
		assert.True(t, errors.Is(err, errors.UnknownField))
	})
	t.Run("config", func(t *testing.T) {
		cfg := docq.DefaultConfig()
		cfg.PKAlias = "id"
		c := docq.NewCompiler(testutil.Person(), docq.WithConfig(cfg))
		fp, err := c.Resolve("id")
		require.NoError(t, err)
		assert.Equal(t, "_id", fp.String())
		assert.Equal(t, "person", c.Schema().Name())
	})
	t.Run("metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := docq.NewMetrics(reg)
		c := docq.NewCompiler(testutil.Person(), docq.WithMetrics(metrics))
		ctx := context.Background()

		_, err := c.Compile(ctx, []docq.Lookup{docq.L("age", 20), docq.L("age__gt", 50)})
		require.NoError(t, err)
		_, err = c.Compile(ctx, []docq.Lookup{docq.L("nickname", "bob")})
		require.Error(t, err)

		assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CompilesTotal.WithLabelValues("ok")))
		assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CompilesTotal.WithLabelValues("invalid")))
		assert.Equal(t, float64(1), promtest.ToFloat64(metrics.DroppedLookupsTotal))
		assert.Equal(t, 1, promtest.CollectAndCount(metrics.CompileDuration))
		count, err := promtest.GatherAndCount(reg, "docq_compile_total")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
	t.Run("logger", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		c := docq.NewCompiler(testutil.Person(), docq.WithLogger(docq.NewZapLogger(zap.New(core))))
		_, err := c.Compile(context.Background(), []docq.Lookup{docq.L("age", 20), docq.L("age__gt", 50)})
		require.NoError(t, err)
		dropped := logs.FilterMessage("dropped lookup").All()
		require.Len(t, dropped, 1)
		assert.Equal(t, "age__gt", dropped[0].ContextMap()["lookup"])
		assert.Equal(t, "person", dropped[0].ContextMap()["collection"])
		assert.Equal(t, 1, logs.FilterMessage("compiled query").Len())
	})
}

func TestCompileCopiesValues(t *testing.T) {
	compiler := docq.NewCompiler(testutil.Person())
	for _, tc := range []struct {
		expr string
		want any
	}{
		{"age__mod", docq.OperatorMap{"$mod": []any{2, 0}}},
		{"tags", []any{2, 0}},
		{"location__near", docq.OperatorMap{"$near": []any{2, 0}}},
		{"age__in", docq.OperatorMap{"$in": []any{2, 0}}},
	} {
		t.Run(tc.expr, func(t *testing.T) {
			value := []any{2, 0}
			f, err := compiler.Compile(context.Background(), []docq.Lookup{docq.L(tc.expr, value)})
			require.NoError(t, err)
			value[0] = 99
			for _, v := range f {
				assert.Equal(t, tc.want, v)
			}
		})
	}
	t.Run("clone does not share slices", func(t *testing.T) {
		f := docq.Fragment{"tags": docq.OperatorMap{"$in": []any{"a", "b"}}, "location": []float64{1, 2}}
		clone := f.Clone()
		clone["tags"].(docq.OperatorMap)["$in"].([]any)[0] = "z"
		clone["location"].([]float64)[0] = 9
		assert.Equal(t, docq.Fragment{"tags": docq.OperatorMap{"$in": []any{"a", "b"}}, "location": []float64{1, 2}}, f)
	})
}

func TestCompileConcurrent(t *testing.T) {
	compiler := docq.NewCompiler(testutil.Person(), docq.WithMetrics(docq.NewMetrics(prometheus.NewRegistry())))
	lookups := []docq.Lookup{docq.L("age__gte", 18), docq.L("name__icontains", "bo")}
	tree := docq.Or(docq.Q(docq.L("tags__in", []string{"a", "b"})), docq.Q(docq.L("friend__age__lt", 30)))
	want, err := compiler.Compile(context.Background(), lookups, tree)
	require.NoError(t, err)

	results := make([]docq.Fragment, 16)
	egp, ctx := errgroup.WithContext(context.Background())
	for i := range results {
		i := i
		egp.Go(func() error {
			f, err := compiler.Compile(ctx, lookups, tree)
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}
	require.NoError(t, egp.Wait())
	for _, f := range results {
		assert.Equal(t, want, f)
	}
}

func TestCompileGolden(t *testing.T) {
	post := docq.NewCompiler(testutil.BlogPost())
	guido := testutil.NewPersonDoc(map[string]any{"_id": "guido"})
	f, err := post.Compile(context.Background(),
		[]docq.Lookup{
			docq.L("title__istartswith", "Go"),
			docq.L("published", true),
			docq.L("comments__content__icontains", "great"),
		},
		docq.Or(
			docq.Q(docq.L("author", guido)),
			docq.Q(docq.L("readers__all", []string{"guido", "tim"})),
		),
	)
	require.NoError(t, err)
	bits, err := json.MarshalIndent(f, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "blog_post_fragment", append(bits, '\n'))
}
