package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/model"
)

func TestReadAndLookup(t *testing.T) {
	v, err := Read(strings.NewReader("<pad>\n<s>\n</s>\n<unk>\n1001\n1002\n"))
	require.NoError(t, err)

	assert.Equal(t, 6, v.Size())
	assert.Equal(t, "1002", v.SongID(5))
	assert.Equal(t, "", v.SongID(6))
	assert.Equal(t, "", v.SongID(-1))
	assert.Equal(t, int32(4), v.Token("1001"))
	assert.Equal(t, model.UnknownID, v.Token("9999"))
	assert.Equal(t, []int32{5, 3, 4}, v.Tokens([]string{"1002", "x", "1001"}))
}

func TestLoadAndCountLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\ne\n"), 0o600))

	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Size())

	n, err := CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
