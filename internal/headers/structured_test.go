package headers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areq-dev/areq/internal/headers"
)

func TestSplitList(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want []string
	}{
		{"gzip, deflate", []string{"gzip", "deflate"}},
		{" gzip ,, deflate ", []string{"gzip", "deflate"}},
		{`realm="a, b", nonce="c"`, []string{`realm="a, b"`, `nonce="c"`}},
		{`a="x\"y,z", b`, []string{`a="x\"y,z"`, "b"}},
		{"", nil},
	} {
		assert.Equal(t, tc.want, headers.SplitList(tc.in), tc.in)
	}
}

func TestParseMember(t *testing.T) {
	m := headers.ParseMember(`gzip; q=0.8; level="9"`)
	assert.Equal(t, "gzip", m.Value)
	assert.Equal(t, 0.8, m.Quality)
	level, ok := m.Param("LEVEL")
	assert.True(t, ok)
	assert.Equal(t, "9", level)

	m = headers.ParseMember("identity")
	assert.Equal(t, "identity", m.Value)
	assert.Equal(t, float64(1), m.Quality)
	_, ok = m.Param("q")
	assert.False(t, ok)
}

func TestParseList(t *testing.T) {
	members := headers.ParseList("gzip; q=1, deflate; q=0.5, br")
	require.Len(t, members, 3)
	assert.Equal(t, "deflate", members[1].Value)
	assert.Equal(t, 0.5, members[1].Quality)
	assert.Equal(t, "br", members[2].Value)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "plain", headers.Unquote("plain"))
	assert.Equal(t, "quoted", headers.Unquote(`"quoted"`))
	assert.Equal(t, `a"b`, headers.Unquote(`"a\"b"`))
	assert.Equal(t, `"`, headers.Unquote(`"`))
}
