package histore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/histore"
	"github.com/hupe1980/histore/filter"
	"github.com/hupe1980/histore/index"
	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/testutil"
	"github.com/hupe1980/histore/value"
)

var (
	name  = ref.Field(testutil.FieldName)
	age   = ref.Field(testutil.FieldAge)
	city  = ref.Field(testutil.FieldCity)
	tags  = ref.Field(testutil.FieldTags)
	email = ref.Field(testutil.FieldEmail)
)

func openStore(t *testing.T, opts ...histore.Option) *histore.Store {
	t.Helper()
	s, err := histore.Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func emailIndex() histore.Option {
	return histore.WithIndex(histore.IndexDef{Name: "email", Reference: email, Unique: true})
}

func add(key string, changes ...histore.Change) histore.Op {
	return histore.Op{Kind: histore.OpAdd, Key: model.Key(key), Changes: changes}
}

func change(key string, changes ...histore.Change) histore.Op {
	return histore.Op{Kind: histore.OpChange, Key: model.Key(key), Changes: changes}
}

func writeAt(t *testing.T, s *histore.Store, v model.Version, ops ...histore.Op) []histore.OpResult {
	t.Helper()
	res, err := s.WriteAt(context.Background(), v, ops...)
	require.NoError(t, err)
	require.Len(t, res, len(ops))
	return res
}

func mustWriteAt(t *testing.T, s *histore.Store, v model.Version, ops ...histore.Op) {
	t.Helper()
	for _, r := range writeAt(t, s, v, ops...) {
		require.NoError(t, r.Err)
	}
}

func getString(t *testing.T, s *histore.Store, key string, r ref.Pattern, opts ...histore.ReadOption) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), model.Key(key), r.Ref(), opts...)
	require.NoError(t, err)
	return v.StringValue(), ok
}

func keys(results []histore.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = string(r.Key)
	}
	return out
}

func TestStore_TimeTravel(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithKeepAllVersions(true))

	mustWriteAt(t, s, 10, add("r", histore.Set(name, value.String("a"))))
	mustWriteAt(t, s, 20, change("r", histore.Set(name, value.String("b"))))

	got, ok := getString(t, s, "r", name, histore.AtVersion(15))
	require.True(t, ok)
	assert.Equal(t, "a", got)
	got, ok = getString(t, s, "r", name, histore.AtVersion(25))
	require.True(t, ok)
	assert.Equal(t, "b", got)

	mustWriteAt(t, s, 30, change("r", histore.Unset(name)))

	_, ok = getString(t, s, "r", name)
	assert.False(t, ok)
	got, ok = getString(t, s, "r", name, histore.AtVersion(25))
	require.True(t, ok)
	assert.Equal(t, "b", got)
	_, ok = getString(t, s, "r", name, histore.AtVersion(30))
	assert.False(t, ok)

	// the record did not exist yet
	_, _, err := s.Get(ctx, model.Key("r"), name.Ref(), histore.AtVersion(5))
	assert.ErrorIs(t, err, histore.ErrNotFound)
	assert.Equal(t, model.Version(30), s.Version())
}

func TestStore_LatestOnlyRetention(t *testing.T) {
	s := openStore(t)
	mustWriteAt(t, s, 10, add("r", histore.Set(name, value.String("a"))))
	mustWriteAt(t, s, 20, change("r", histore.Set(name, value.String("b"))))

	got, ok := getString(t, s, "r", name)
	require.True(t, ok)
	assert.Equal(t, "b", got)

	// without retention only the newest entry survives
	_, ok = getString(t, s, "r", name, histore.AtVersion(15))
	assert.False(t, ok)
	assert.False(t, s.KeepAllVersions())
}

func TestStore_LatestOnlyIndexChurn(t *testing.T) {
	s := openStore(t, emailIndex(), histore.WithIndex(histore.IndexDef{Name: "age", Reference: age}))

	mustWriteAt(t, s, 1, add("r", histore.Set(age, value.Int(0)), histore.Set(email, value.String("0@y.com"))))
	for i := 1; i < 50; i++ {
		mustWriteAt(t, s, model.Version(i+1), change("r",
			histore.Set(age, value.Int(int64(i))),
			histore.Set(email, value.String(fmt.Sprintf("%d@y.com", i))),
		))
	}

	// released values leave no slots behind
	for _, st := range s.Stats().Indexes {
		assert.Equal(t, 1, st.Slots, st.Name)
	}
}

func TestStore_UniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithKeepAllVersions(true), emailIndex())

	mustWriteAt(t, s, 5, add("a", histore.Set(email, value.String("x@y.com"))))

	res := writeAt(t, s, 6, add("b", histore.Set(email, value.String("x@y.com"))))
	var uc *histore.UniqueConflictError
	require.ErrorAs(t, res[0].Err, &uc)
	assert.ErrorIs(t, res[0].Err, index.ErrUniqueConflict)
	assert.Equal(t, "email", uc.Index)
	assert.Equal(t, email.Ref(), uc.Reference)
	assert.Equal(t, model.Key("b"), uc.Key)
	assert.Equal(t, model.Key("a"), uc.HeldBy)
	assert.False(t, res[0].Changed)

	exists, err := s.Exists(ctx, model.Key("b"))
	require.NoError(t, err)
	assert.False(t, exists, "rejected add must not create the record")

	holder, err := s.Lookup(ctx, "email", value.String("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)

	mustWriteAt(t, s, 7, change("a", histore.Set(email, value.String("z@y.com"))))

	_, err = s.Lookup(ctx, "email", value.String("x@y.com"))
	assert.ErrorIs(t, err, histore.ErrNotFound)
	holder, err = s.Lookup(ctx, "email", value.String("z@y.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)
	holder, err = s.Lookup(ctx, "email", value.String("x@y.com"), histore.AtVersion(6))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)

	mustWriteAt(t, s, 8, add("b", histore.Set(email, value.String("x@y.com"))))
	holder, err = s.Lookup(ctx, "email", value.String("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("b"), holder)
}

func TestStore_UniqueConflictWithinBatch(t *testing.T) {
	s := openStore(t, emailIndex())

	res := writeAt(t, s, 1,
		add("a", histore.Set(email, value.String("x@y.com"))),
		add("b", histore.Set(email, value.String("x@y.com"))),
		add("c", histore.Set(email, value.String("c@y.com"))),
	)
	require.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, index.ErrUniqueConflict)
	require.NoError(t, res[2].Err)
	assert.Equal(t, 2, s.Stats().Live)
}

func TestStore_UniqueNumbersByValue(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithIndex(histore.IndexDef{Name: "age", Reference: age, Unique: true}))

	mustWriteAt(t, s, 1, add("a", histore.Set(age, value.Int(36))))

	res := writeAt(t, s, 2,
		add("b", histore.Set(age, value.Float(36))),
		add("c", histore.Set(age, value.Float(36.5))),
	)
	assert.ErrorIs(t, res[0].Err, index.ErrUniqueConflict)
	require.NoError(t, res[1].Err)

	holder, err := s.Lookup(ctx, "age", value.Float(36))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)
	holder, err = s.Lookup(ctx, "age", value.Float(36.5))
	require.NoError(t, err)
	assert.Equal(t, model.Key("c"), holder)

	// filter equality agrees with the index
	n, err := s.Count(ctx, &filter.Equals{Ref: age, Value: value.Float(36)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_UniqueSwapAcrossProperties(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithIndex(histore.IndexDef{Name: "tag", Reference: tags.AnyIndex(), Unique: true}))

	mustWriteAt(t, s, 1, add("a",
		histore.Set(tags.Index(0), value.String("go")),
		histore.Set(tags.Index(1), value.String("db")),
	))
	// moving a value between properties of the same record is not a conflict
	mustWriteAt(t, s, 2, change("a",
		histore.Set(tags.Index(0), value.String("db")),
		histore.Unset(tags.Index(1)),
	))

	holder, err := s.Lookup(ctx, "tag", value.String("db"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)
	_, err = s.Lookup(ctx, "tag", value.String("go"))
	assert.ErrorIs(t, err, histore.ErrNotFound)
}

func TestStore_FilterAsOfVersion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithKeepAllVersions(true))

	mustWriteAt(t, s, 30, add("r", histore.Set(age, value.Int(20))))
	mustWriteAt(t, s, 40, change("r", histore.Unset(age)))

	adult := &filter.And{Filters: []filter.Filter{
		&filter.Exists{Ref: age},
		&filter.GreaterThanEquals{Ref: age, Value: value.Int(18)},
	}}

	res, err := s.Scan(ctx, histore.ScanRequest{Filter: adult, Version: 35})
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, keys(res))

	res, err = s.Scan(ctx, histore.ScanRequest{Filter: adult, Version: 45})
	require.NoError(t, err)
	assert.Empty(t, res)

	n, err := s.Count(ctx, adult, histore.AtVersion(35))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Count(ctx, adult)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_WriteOutcomes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	mustWriteAt(t, s, 1, add("a", histore.Set(name, value.String("ada"))))

	t.Run("add existing", func(t *testing.T) {
		_, _, err := s.Add(ctx, model.Key("a"))
		assert.ErrorIs(t, err, histore.ErrAlreadyExists)
	})

	t.Run("change missing", func(t *testing.T) {
		_, err := s.Change(ctx, model.Key("missing"), histore.Set(name, value.String("x")))
		assert.ErrorIs(t, err, histore.ErrNotFound)
	})

	t.Run("unchanged value", func(t *testing.T) {
		_, res, err := s.Write(ctx, change("a", histore.Set(name, value.String("ada"))))
		require.NoError(t, err)
		require.NoError(t, res[0].Err)
		assert.False(t, res[0].Changed)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, res, err := s.Write(ctx, change("a", histore.Change{Ref: name.Ref()}))
		require.NoError(t, err)
		assert.ErrorIs(t, res[0].Err, histore.ErrInvalidArgument)
	})

	t.Run("soft-delete marker", func(t *testing.T) {
		_, res, err := s.Write(ctx, change("a", histore.Change{Ref: ref.SoftDelete, Value: value.Bool(true)}))
		require.NoError(t, err)
		assert.ErrorIs(t, res[0].Err, histore.ErrInvalidArgument)
	})

	t.Run("wildcard reference", func(t *testing.T) {
		var res []histore.OpResult
		require.NotPanics(t, func() {
			var err error
			_, res, err = s.Write(ctx,
				change("a", histore.Set(tags.AnyIndex(), value.String("x"))),
				change("a", histore.Unset(tags.AnyIndex())),
			)
			require.NoError(t, err)
		})
		assert.ErrorIs(t, res[0].Err, histore.ErrInvalidArgument)
		assert.ErrorIs(t, res[1].Err, histore.ErrInvalidArgument)
	})

	t.Run("delete with changes", func(t *testing.T) {
		_, res, err := s.Write(ctx, histore.Op{
			Kind:    histore.OpDelete,
			Key:     model.Key("a"),
			Changes: []histore.Change{histore.Set(name, value.String("x"))},
		})
		require.NoError(t, err)
		assert.ErrorIs(t, res[0].Err, histore.ErrInvalidArgument)
	})

	t.Run("empty write", func(t *testing.T) {
		_, _, err := s.Write(ctx)
		assert.ErrorIs(t, err, histore.ErrInvalidArgument)
	})

	got, ok := getString(t, s, "a", name)
	require.True(t, ok)
	assert.Equal(t, "ada", got)
}

func TestStore_PartialBatch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	v, res, err := s.Write(ctx,
		add("a", histore.Set(name, value.String("ada"))),
		change("missing", histore.Set(name, value.String("x"))),
		change("a", histore.Set(age, value.Int(36))),
	)
	require.NoError(t, err)
	require.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, histore.ErrNotFound)
	require.NoError(t, res[2].Err)
	assert.Equal(t, v, s.Version())

	props, err := s.Values(ctx, model.Key("a"))
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, name.Ref(), props[0].Ref)
	assert.Equal(t, age.Ref(), props[1].Ref)
}

func TestStore_SoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithKeepAllVersions(true), emailIndex())

	mustWriteAt(t, s, 1, add("a", histore.Set(email, value.String("x@y.com"))))
	mustWriteAt(t, s, 2, histore.Op{Kind: histore.OpDelete, Key: model.Key("a")})

	exists, err := s.Exists(ctx, model.Key("a"))
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = s.Exists(ctx, model.Key("a"), histore.IncludeDeleted())
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Exists(ctx, model.Key("a"), histore.AtVersion(1))
	require.NoError(t, err)
	assert.True(t, exists)

	_, _, err = s.Get(ctx, model.Key("a"), email.Ref())
	assert.ErrorIs(t, err, histore.ErrNotFound)
	got, ok := getString(t, s, "a", email, histore.IncludeDeleted())
	require.True(t, ok)
	assert.Equal(t, "x@y.com", got)

	// deleting twice changes nothing
	res := writeAt(t, s, 3, histore.Op{Kind: histore.OpDelete, Key: model.Key("a")})
	require.NoError(t, res[0].Err)
	assert.False(t, res[0].Changed)

	// the soft-deleted record released its unique value
	mustWriteAt(t, s, 4, add("b", histore.Set(email, value.String("x@y.com"))))

	res = writeAt(t, s, 5, histore.Op{Kind: histore.OpRestore, Key: model.Key("a")})
	var uc *histore.UniqueConflictError
	require.ErrorAs(t, res[0].Err, &uc)
	assert.Equal(t, model.Key("b"), uc.HeldBy)

	mustWriteAt(t, s, 6, change("b", histore.Unset(email)))
	mustWriteAt(t, s, 7, histore.Op{Kind: histore.OpRestore, Key: model.Key("a")})

	exists, err = s.Exists(ctx, model.Key("a"))
	require.NoError(t, err)
	assert.True(t, exists)
	holder, err := s.Lookup(ctx, "email", value.String("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)

	st := s.Stats()
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, 2, st.Live)
	assert.Equal(t, 0, st.Deleted)
}

func TestStore_HardDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, histore.WithKeepAllVersions(true), emailIndex())

	mustWriteAt(t, s, 1, add("a", histore.Set(email, value.String("x@y.com"))))
	mustWriteAt(t, s, 2, change("a", histore.Set(email, value.String("z@y.com"))))
	mustWriteAt(t, s, 3, histore.Op{Kind: histore.OpHardDelete, Key: model.Key("a")})

	exists, err := s.Exists(ctx, model.Key("a"), histore.IncludeDeleted())
	require.NoError(t, err)
	assert.False(t, exists)

	// index history is erased too
	_, err = s.Lookup(ctx, "email", value.String("x@y.com"), histore.AtVersion(1))
	assert.ErrorIs(t, err, histore.ErrNotFound)
	assert.Equal(t, 0, s.Stats().Indexes[0].Slots)

	res := writeAt(t, s, 4, histore.Op{Kind: histore.OpHardDelete, Key: model.Key("a")})
	assert.ErrorIs(t, res[0].Err, histore.ErrNotFound)
	assert.False(t, res[0].Changed)

	// the key can be reused
	mustWriteAt(t, s, 10, add("a", histore.Set(email, value.String("x@y.com"))))
	holder, err := s.Lookup(ctx, "email", value.String("x@y.com"))
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), holder)
}

func TestStore_GeneratedKeys(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	k1, v1, err := s.Add(ctx, nil, histore.Set(name, value.String("a")))
	require.NoError(t, err)
	k2, v2, err := s.Add(ctx, nil, histore.Set(name, value.String("b")))
	require.NoError(t, err)

	assert.Len(t, k1, 16)
	assert.NotEqual(t, k1, k2)
	assert.Greater(t, v2, v1)

	n := 0
	s2 := openStore(t, histore.WithKeyGenerator(func() (model.Key, error) {
		n++
		return model.Key{byte(n)}, nil
	}))
	k, _, err := s2.Add(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Key{1}, k)
}

func TestStore_VersionRegression(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	mustWriteAt(t, s, 10, add("a"))

	_, err := s.WriteAt(ctx, 10, add("b"))
	assert.ErrorIs(t, err, histore.ErrVersionRegression)
	_, err = s.WriteAt(ctx, 9, add("b"))
	assert.ErrorIs(t, err, histore.ErrVersionRegression)
	_, err = s.WriteAt(ctx, 0, add("b"))
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)

	// clock-assigned versions continue after caller-chosen ones
	v, _, err := s.Write(ctx, add("b"))
	require.NoError(t, err)
	assert.Greater(t, v, model.Version(10))
}

func TestStore_Scan(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	mustWriteAt(t, s, 1,
		add("c", histore.Set(city, value.String("Munich"))),
		add("a", histore.Set(city, value.String("Berlin"))),
		add("b", histore.Set(city, value.String("Berlin"))),
		add("d", histore.Set(city, value.String("Hamburg"))),
	)
	mustWriteAt(t, s, 2, histore.Op{Kind: histore.OpDelete, Key: model.Key("d")})

	tests := []struct {
		name string
		req  histore.ScanRequest
		want []string
	}{
		{"all", histore.ScanRequest{}, []string{"a", "b", "c"}},
		{"from", histore.ScanRequest{From: model.Key("b")}, []string{"b", "c"}},
		{"to", histore.ScanRequest{To: model.Key("c")}, []string{"a", "b"}},
		{"limit", histore.ScanRequest{Limit: 2}, []string{"a", "b"}},
		{"deleted", histore.ScanRequest{IncludeDeleted: true}, []string{"a", "b", "c", "d"}},
		{"before delete", histore.ScanRequest{Version: 1}, []string{"a", "b", "c", "d"}},
		{"filter", histore.ScanRequest{
			Filter: &filter.Equals{Ref: city, Value: value.String("Berlin")},
		}, []string{"a", "b"}},
		{"empty range", histore.ScanRequest{From: model.Key("c"), To: model.Key("a")}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Scan(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(res))
		})
	}

	res, err := s.Scan(ctx, histore.ScanRequest{From: model.Key("d"), IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Deleted)
	require.Len(t, res[0].Properties, 1)
	assert.Equal(t, "Hamburg", res[0].Properties[0].Value.StringValue())

	_, err = s.Scan(ctx, histore.ScanRequest{Limit: -1})
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
	_, err = s.Scan(ctx, histore.ScanRequest{Filter: &filter.Exists{}})
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
}

func TestStore_Count(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	people := testutil.People(testutil.NewRNG(42), 200)
	ops := make([]histore.Op, len(people))
	berlin := 0
	for i, p := range people {
		var changes []histore.Change
		for _, prop := range p.Properties() {
			changes = append(changes, histore.Change{Ref: prop.Ref, Value: prop.Value})
		}
		ops[i] = histore.Op{Kind: histore.OpAdd, Key: p.Key, Changes: changes}
		if p.City == "Berlin" {
			berlin++
		}
	}
	mustWriteAt(t, s, 1, ops...)
	mustWriteAt(t, s, 2, histore.Op{Kind: histore.OpDelete, Key: people[0].Key})

	n, err := s.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 199, n)
	n, err = s.Count(ctx, nil, histore.IncludeDeleted())
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	n, err = s.Count(ctx, nil, histore.AtVersion(1))
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	n, err = s.Count(ctx, &filter.Equals{Ref: city, Value: value.String("Berlin")}, histore.AtVersion(1))
	require.NoError(t, err)
	assert.Equal(t, berlin, n)

	scanned, err := s.Scan(ctx, histore.ScanRequest{Filter: &filter.GreaterThanEquals{Ref: age, Value: value.Int(50)}})
	require.NoError(t, err)
	n, err = s.Count(ctx, &filter.GreaterThanEquals{Ref: age, Value: value.Int(50)})
	require.NoError(t, err)
	assert.Equal(t, len(scanned), n)

	_, err = s.Count(ctx, &filter.Not{})
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
}

func TestStore_ScanIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t,
		histore.WithIndex(histore.IndexDef{Name: "age", Reference: age}),
		histore.WithIndex(histore.IndexDef{Name: "tags", Reference: tags.AnyIndex()}),
	)

	mustWriteAt(t, s, 1,
		add("a", histore.Set(age, value.Int(40)), histore.Set(tags.Index(0), value.String("go"))),
		add("b", histore.Set(age, value.Int(20)), histore.Set(tags.Index(0), value.String("db"))),
		add("c", histore.Set(age, value.Int(30)),
			histore.Set(tags.Index(0), value.String("go")),
			histore.Set(tags.Index(1), value.String("db")),
		),
		add("d", histore.Set(age, value.Int(30))),
	)

	all, err := s.ScanIndex(ctx, "age", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{model.Key("b"), model.Key("c"), model.Key("d"), model.Key("a")}, all)

	from, to := value.Int(25), value.Int(40)
	mid, err := s.ScanIndex(ctx, "age", &from, &to)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{model.Key("c"), model.Key("d")}, mid)

	goFrom, goTo := value.String("go"), value.String("gp")
	tagged, err := s.ScanIndex(ctx, "tags", &goFrom, &goTo)
	require.NoError(t, err)
	assert.Equal(t, []model.Key{model.Key("a"), model.Key("c")}, tagged)

	mustWriteAt(t, s, 2, change("a", histore.Set(age, value.Int(10))))
	all, err = s.ScanIndex(ctx, "age", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Key("a"), all[0])

	_, err = s.ScanIndex(ctx, "age", &to, &from)
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
	_, err = s.ScanIndex(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, histore.ErrUnknownIndex)
	_, err = s.Lookup(ctx, "age", value.Int(30))
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
}

func TestStore_InvalidOptions(t *testing.T) {
	ctx := context.Background()

	_, err := histore.Open(ctx, emailIndex(), emailIndex())
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)

	_, err = histore.Open(ctx, histore.WithIndex(histore.IndexDef{Name: "x"}))
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)

	_, err = histore.Open(ctx, histore.WithIndex(histore.IndexDef{Reference: email}))
	assert.ErrorIs(t, err, histore.ErrInvalidArgument)
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	s, err := histore.Open(ctx)
	require.NoError(t, err)
	_, _, err = s.Add(ctx, model.Key("a"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), histore.ErrClosed)

	_, _, err = s.Add(ctx, model.Key("b"))
	assert.ErrorIs(t, err, histore.ErrClosed)
	_, _, err = s.Get(ctx, model.Key("a"), name.Ref())
	assert.ErrorIs(t, err, histore.ErrClosed)
	_, err = s.Scan(ctx, histore.ScanRequest{})
	assert.ErrorIs(t, err, histore.ErrClosed)
	_, err = s.Count(ctx, nil)
	assert.ErrorIs(t, err, histore.ErrClosed)
}

func TestStore_CanceledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Add(ctx, model.Key("a"))
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.Get(ctx, model.Key("a"), name.Ref())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Metrics(t *testing.T) {
	ctx := context.Background()
	m := &histore.BasicMetricsCollector{}
	s := openStore(t, histore.WithMetricsCollector(m), emailIndex())

	res := writeAt(t, s, 1,
		add("a", histore.Set(email, value.String("x@y.com"))),
		add("b", histore.Set(email, value.String("x@y.com"))),
	)
	require.NoError(t, res[0].Err)
	require.ErrorIs(t, res[1].Err, index.ErrUniqueConflict)
	_, _, err := s.Get(ctx, model.Key("a"), email.Ref())
	require.NoError(t, err)
	_, _, err = s.Get(ctx, model.Key("missing"), email.Ref())
	require.ErrorIs(t, err, histore.ErrNotFound)
	_, err = s.Scan(ctx, histore.ScanRequest{})
	require.NoError(t, err)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(2), stats.WriteOps)
	assert.Equal(t, int64(1), stats.WriteFailedOps)
	assert.Equal(t, int64(1), stats.Conflicts)
	assert.Equal(t, int64(2), stats.ReadCount)
	assert.Equal(t, int64(1), stats.ReadErrors)
	assert.Equal(t, int64(1), stats.ScanCount)
	assert.Equal(t, int64(1), stats.ScanMatched)
}

func TestStore_Indexes(t *testing.T) {
	s := openStore(t, emailIndex(), histore.WithIndex(histore.IndexDef{Name: "age", Reference: age}))

	defs := s.Indexes()
	require.Len(t, defs, 2)
	assert.Equal(t, "email", defs[0].Name)
	assert.True(t, defs[0].Unique)
	assert.Equal(t, "age", defs[1].Name)
	assert.False(t, defs[1].Unique)
}
