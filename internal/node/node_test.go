package node

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/histore/model"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/testutil"
	"github.com/hupe1980/histore/value"
)

var testRef = ref.Field(1).Ref()

func TestSet_Absent(t *testing.T) {
	n, changed := Set(nil, testRef, value.Int(1), 10, false)
	require.True(t, changed)
	l, ok := n.(*Live)
	require.True(t, ok)
	assert.Equal(t, model.Version(10), l.At)
	assert.True(t, value.Equal(value.Int(1), l.Value))
	assert.Equal(t, testRef, n.Ref())
}

func TestSet_LiveSameValueIsNoop(t *testing.T) {
	for _, keep := range []bool{false, true} {
		n := NewLive(testRef, value.String("a"), 10)
		got, changed := Set(n, testRef, value.String("a"), 20, keep)
		assert.False(t, changed)
		assert.Same(t, n, got)
	}
}

func TestSet_LiveReplace(t *testing.T) {
	n := NewLive(testRef, value.Int(1), 10)
	got, changed := Set(n, testRef, value.Int(2), 20, false)
	require.True(t, changed)
	l := got.(*Live)
	assert.Equal(t, model.Version(20), l.At)
	assert.True(t, value.Equal(value.Int(2), l.Value))

	// the old node is never modified
	assert.True(t, value.Equal(value.Int(1), n.Value))
}

func TestSet_LiveKeepHistory(t *testing.T) {
	n := NewLive(testRef, value.Int(1), 10)
	got, changed := Set(n, testRef, value.Int(2), 20, true)
	require.True(t, changed)
	h, ok := got.(*History)
	require.True(t, ok)
	require.Equal(t, 2, h.Len())
	assert.Equal(t, model.Version(20), h.Version())

	v, ok := Get(h, 15)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(1), v))
	v, ok = Get(h, model.Latest)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(2), v))
	_, ok = Get(h, 9)
	assert.False(t, ok)
}

func TestSet_SameVersionReplacesLive(t *testing.T) {
	n := NewLive(testRef, value.Int(1), 10)
	got, changed := Set(n, testRef, value.Int(2), 10, true)
	require.True(t, changed)
	l, ok := got.(*Live)
	require.True(t, ok)
	assert.True(t, value.Equal(value.Int(2), l.Value))
}

func TestSet_TombstoneStartsFreshLive(t *testing.T) {
	for _, keep := range []bool{false, true} {
		n := NewTombstone(testRef, 10)
		got, changed := Set(n, testRef, value.Bool(true), 20, keep)
		require.True(t, changed)
		l, ok := got.(*Live)
		require.True(t, ok)
		assert.Equal(t, model.Version(20), l.At)
	}
}

func TestSet_HistoryAppend(t *testing.T) {
	var n Node
	n, _ = Set(n, testRef, value.Int(1), 10, true)
	n, _ = Set(n, testRef, value.Int(2), 20, true)
	n, _ = Set(n, testRef, value.Int(3), 30, true)

	h := n.(*History)
	require.Equal(t, 3, h.Len())
	Check(h)

	// unchanged value is a no-op
	got, changed := Set(h, testRef, value.Int(3), 40, true)
	assert.False(t, changed)
	assert.Same(t, h, got)

	for _, tc := range []struct {
		at   model.Version
		want int64
	}{{10, 1}, {19, 1}, {20, 2}, {29, 2}, {30, 3}, {model.Latest, 3}} {
		v, ok := Get(h, tc.at)
		require.True(t, ok, "version %d", tc.at)
		assert.Equal(t, tc.want, v.I64, "version %d", tc.at)
	}
}

func TestSet_HistorySameVersionDropsRedundant(t *testing.T) {
	var n Node
	n, _ = Set(n, testRef, value.Int(1), 10, true)
	n, _ = Set(n, testRef, value.Int(2), 20, true)

	// rewriting version 20 back to the previous value leaves one entry
	n, changed := Set(n, testRef, value.Int(1), 20, true)
	require.True(t, changed)
	l, ok := n.(*Live)
	require.True(t, ok)
	assert.Equal(t, model.Version(10), l.At)
}

func TestSet_VersionRegressionPanics(t *testing.T) {
	n := NewLive(testRef, value.Int(1), 10)
	assert.Panics(t, func() { Set(n, testRef, value.Int(2), 9, false) })
	assert.Panics(t, func() { Delete(n, 9, true) })
}

func TestDelete(t *testing.T) {
	got, changed := Delete(nil, 10, true)
	assert.False(t, changed)
	assert.Nil(t, got)

	n := NewLive(testRef, value.Int(1), 10)
	got, changed = Delete(n, 20, false)
	require.True(t, changed)
	ts, ok := got.(*Tombstone)
	require.True(t, ok)
	assert.Equal(t, model.Version(20), ts.At)
	_, ok = Get(got, model.Latest)
	assert.False(t, ok)

	got2, changed := Delete(got, 30, false)
	assert.False(t, changed)
	assert.Same(t, got, got2)
}

func TestDelete_KeepHistory(t *testing.T) {
	var n Node
	n, _ = Set(n, testRef, value.Int(1), 10, true)
	n, _ = Delete(n, 20, true)
	n, _ = Set(n, testRef, value.Int(1), 30, true)

	h := n.(*History)
	require.Equal(t, 3, h.Len())
	_, isTomb := h.Entries()[1].(*Tombstone)
	assert.True(t, isTomb)

	_, ok := Get(h, 25)
	assert.False(t, ok)
	v, ok := Get(h, 35)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.I64)

	// deleting an already deleted history is a no-op
	n, _ = Delete(n, 40, true)
	got, changed := Delete(n, 50, true)
	assert.False(t, changed)
	assert.Same(t, n, got)
}

func TestFlattenFromEntries(t *testing.T) {
	var n Node
	n, _ = Set(n, testRef, value.Int(1), 10, true)
	n, _ = Delete(n, 20, true)
	n, _ = Set(n, testRef, value.Int(2), 30, true)

	other := ref.Field(2).Ref()
	rebuilt := FromEntries(other, Flatten(n))
	require.IsType(t, &History{}, rebuilt)
	assert.Equal(t, other, rebuilt.Ref())
	for _, e := range Flatten(rebuilt) {
		assert.Equal(t, other, e.Ref())
	}
	assert.Equal(t, model.Version(30), rebuilt.Version())

	assert.Nil(t, FromEntries(testRef, nil))
	assert.IsType(t, &Live{}, FromEntries(testRef, Flatten(NewLive(testRef, value.Null(), 1))))
}

func TestCheck_Panics(t *testing.T) {
	assert.Panics(t, func() {
		FromEntries(testRef, []Node{NewLive(testRef, value.Int(1), 20), NewLive(testRef, value.Int(2), 10)})
	})
	assert.Panics(t, func() {
		FromEntries(testRef, []Node{NewLive(testRef, value.Int(1), 10), NewLive(testRef, value.Int(1), 20)})
	})
	assert.Panics(t, func() {
		FromEntries(testRef, []Node{NewTombstone(testRef, 10), NewTombstone(testRef, 20)})
	})
}

// write is one applied write of the random sequences below.
type write struct {
	version model.Version
	value   value.Value
	present bool
}

// stateAt returns the state the last write at or before v left behind.
func stateAt(writes []write, v model.Version) (value.Value, bool) {
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].version <= v {
			return writes[i].value, writes[i].present
		}
	}
	return value.Value{}, false
}

func TestRandomSequences(t *testing.T) {
	pool := []value.Value{value.Int(1), value.Float(1), value.String("a"), value.Null()}
	for _, keep := range []bool{true, false} {
		for _, seed := range []int64{3, 11, 29} {
			t.Run(fmt.Sprintf("keep=%t/seed=%d", keep, seed), func(t *testing.T) {
				rng := testutil.NewRNG(seed)
				var (
					n      Node
					writes []write
				)
				version := model.Version(1)
				for step := 0; step < 500; step++ {
					// some writes share a version with the previous one
					version += model.Version(rng.Intn(2))
					if rng.Intn(3) == 0 {
						n, _ = Delete(n, version, keep)
						writes = append(writes, write{version: version})
					} else {
						v := pool[rng.Intn(len(pool))]
						if rng.Intn(2) == 0 {
							v = rng.Value()
						}
						n, _ = Set(n, testRef, v, version, keep)
						writes = append(writes, write{version: version, value: v, present: true})
					}

					require.NotPanics(t, func() { Check(n) }, "step %d", step)
					if !keep {
						_, isHistory := n.(*History)
						require.False(t, isHistory)
					}

					want, wantOK := stateAt(writes, model.Latest)
					got, ok := Get(n, model.Latest)
					require.Equal(t, wantOK, ok, "step %d", step)
					if ok {
						require.True(t, value.Equal(want, got), "step %d: got %s, want %s", step, got, want)
					}
					if !keep {
						continue
					}
					for at := model.Version(1); at <= version; at++ {
						want, wantOK := stateAt(writes, at)
						got, ok := Get(n, at)
						require.Equal(t, wantOK, ok, "step %d at %d", step, at)
						if ok {
							require.True(t, value.Equal(want, got), "step %d at %d: got %s, want %s", step, at, got, want)
						}
					}
				}
			})
		}
	}
}
