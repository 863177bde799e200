package sbmark

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadObjectPool(t *testing.T) {
	pool, err := ReadObjectPool(strings.NewReader(`[["b1","k1"], ["b2", "dir/k 2"]]`))
	require.NoError(t, err)
	require.Equal(t, 2, pool.Len())
	assert.Equal(t, ObjectRef{Bucket: "b1", Key: "k1"}, pool.At(0))
	assert.Equal(t, ObjectRef{Bucket: "b2", Key: "dir/k 2"}, pool.At(1))
}

func TestReadObjectPoolEmpty(t *testing.T) {
	pool, err := ReadObjectPool(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Len())
}

func TestReadObjectPoolRejectsMalformedEntries(t *testing.T) {
	inputs := []string{
		``,
		`{"b":"k"}`,
		`[["b1"]]`,
		`[["b1","k1","extra"]]`,
		`[["b1", 3]]`,
		`[["", "k"]]`,
		`[["b1","k1"]`,
	}
	for _, in := range inputs {
		_, err := ReadObjectPool(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrConfiguration, "input %q", in)
	}
}

func TestObjectPoolRoundTripThroughFile(t *testing.T) {
	refs := []ObjectRef{
		{Bucket: "alpha", Key: "seed-1"},
		{Bucket: "beta", Key: `quote"d`},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteObjectPool(&buf, refs))

	path := filepath.Join(t.TempDir(), "objects.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	pool, err := LoadObjectPool(path)
	require.NoError(t, err)
	require.Equal(t, len(refs), pool.Len())
	for i, ref := range refs {
		assert.Equal(t, ref, pool.At(i))
	}
}

func TestLoadObjectPoolMissingFile(t *testing.T) {
	_, err := LoadObjectPool(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestObjectPoolRandomUsesPicker(t *testing.T) {
	pool := NewObjectPool([]ObjectRef{{"b", "k0"}, {"b", "k1"}, {"b", "k2"}})
	var asked int
	ref := pool.Random(func(n int) int {
		asked = n
		return 2
	})
	assert.Equal(t, 3, asked)
	assert.Equal(t, "k2", ref.Key)
}
