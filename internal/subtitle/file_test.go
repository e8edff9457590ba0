package subtitle

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTidyFileRewritesInPlace(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/media/show/episode.vtt"
	raw := "WEBVTT\n\n" +
		"00:00:01.000 --> 00:00:02.000\nHello\n\n" +
		"00:00:02.000 --> 00:00:03.000\nHello\n\n" +
		"00:00:04.000 --> 00:00:05.000\nm 0 0 l 0 45 l 120 45 l 120 0\n\n"
	require.NoError(t, afero.WriteFile(fs, path, []byte(raw), 0o600))

	stats, err := TidyFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Parsed: 3, Kept: 1}, stats)

	got, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nHello\n\n", string(got))

	entries, err := afero.ReadDir(fs, "/media/show")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())
}

func TestTidyFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := TidyFile(fs, "/nope.vtt")
	require.Error(t, err)

	exists, err := afero.Exists(fs, "/nope.vtt")
	require.NoError(t, err)
	assert.False(t, exists)
}
