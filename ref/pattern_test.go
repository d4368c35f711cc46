package ref

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTrip(t *testing.T) {
	for _, text := range []string{"1", "2.{city}", "4.[*]", "4.[3]", "7.{*}.2", "3.{a.b}"} {
		p, err := Parse(text)
		require.NoError(t, err, text)
		assert.Equal(t, text, p.String())
	}
}

func TestParse_Errors(t *testing.T) {
	for _, text := range []string{"", "x", "[1]", "1.[x]", "{a}", "1.", "1.[-1]"} {
		_, err := Parse(text)
		assert.ErrorIs(t, err, ErrSyntax, text)
	}
}

func TestPattern_Reference(t *testing.T) {
	r, ok := MustParse("2.{city}").Reference()
	require.True(t, ok)
	assert.Equal(t, "2.{city}", r.String())

	_, ok = MustParse("4.[*]").Reference()
	assert.False(t, ok)
	assert.Panics(t, func() { MustParse("4.[*]").Ref() })
	assert.Equal(t, Field(4).Ref(), MustParse("4").Ref())
}

func TestPattern_Match(t *testing.T) {
	list := Field(4).AnyIndex()
	assert.True(t, list.Match(Field(4).Index(0).Ref()))
	assert.True(t, list.Match(Field(4).Index(99).Ref()))
	assert.False(t, list.Match(Field(4).Ref()))
	assert.False(t, list.Match(Field(5).Index(0).Ref()))
	assert.False(t, list.Match(Field(4).Key("0").Ref()))

	m := Field(2).AnyKey().Field(1)
	assert.True(t, m.Match(Field(2).Key("x").Field(1).Ref()))
	assert.False(t, m.Match(Field(2).Key("x").Field(2).Ref()))
}

func TestPattern_Prefix(t *testing.T) {
	p := Field(4).AnyIndex()
	prefix := p.Prefix()
	assert.Equal(t, Field(4).Ref(), prefix)
	for _, i := range []uint32{0, 1, 1 << 20} {
		r := Field(4).Index(i).Ref()
		assert.Equal(t, []byte(prefix), []byte(r[:len(prefix)]))
	}
}

func TestReference_Order(t *testing.T) {
	refs := []Reference{
		Field(2).Ref(),
		Field(1).Key("b").Ref(),
		SoftDelete,
		Field(1).Ref(),
		Field(1).Key("a").Ref(),
		Field(10).Ref(),
		Field(1).Index(3).Ref(),
	}
	sort.Slice(refs, func(i, j int) bool { return Compare(refs[i], refs[j]) < 0 })

	got := make([]string, len(refs))
	for i, r := range refs {
		got[i] = r.String()
	}
	assert.Equal(t, []string{"<deleted>", "1", "1.[3]", "1.{a}", "1.{b}", "2", "10"}, got)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(Reference{0x10, 0x00})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = Decode(Reference{0x99})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidReference)

	assert.Equal(t, "0x99", Reference{0x99}.String())
}

func TestPattern_Immutable(t *testing.T) {
	base := Field(1)
	a := base.Key("a")
	b := base.Key("b")
	assert.Equal(t, "1.{a}", a.String())
	assert.Equal(t, "1.{b}", b.String())
	assert.Equal(t, "1", base.String())
}
