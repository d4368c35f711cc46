package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type section struct {
	Key      []byte            `json:"key"`
	Version  uint64            `json:"version"`
	Deleted  bool              `json:"deleted,omitempty"`
	Children map[string]string `json:"children,omitempty"`
}

func TestCodecs_Interchangeable(t *testing.T) {
	in := section{Key: []byte{0, 1, 0xff}, Version: 1 << 60, Children: map[string]string{"a": "b"}}

	for _, enc := range []Codec{JSON{}, GoJSON{}} {
		for _, dec := range []Codec{JSON{}, GoJSON{}} {
			t.Run(enc.Name()+"->"+dec.Name(), func(t *testing.T) {
				data, err := enc.Marshal(in)
				require.NoError(t, err)
				var out section
				require.NoError(t, dec.Unmarshal(data, &out))
				assert.Equal(t, in, out)
			})
		}
	}
}

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.IsType(t, GoJSON{}, c)

	_, ok = ByName("msgpack")
	assert.False(t, ok)
	assert.Panics(t, func() { MustByName("msgpack") })
	assert.Equal(t, Default, MustByName(Default.Name()))
}
