package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmshv/podmirror/internal"
)

func episode(t *testing.T, title, html string) internal.Episode {
	t.Helper()
	pub := time.Date(2021, 1, 2, 15, 4, 0, 0, time.UTC)
	ep, err := internal.NewEpisode(7, internal.RawItem{
		Title:        title,
		Description:  html,
		EnclosureURL: "https://cdn.example.com/7.mp3",
		Duration:     "01:02:03",
		PublishedAt:  &pub,
	})
	require.NoError(t, err)
	return ep
}

func TestRender(t *testing.T) {
	w := NewWriter(t.TempDir())
	ep := episode(t, "Hello, World!", "<p>First&nbsp;line with <strong>bold</strong>.</p><p>Second paragraph.</p>")

	content, err := w.Render(ep)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(content, "Hello, World!\n\n2021-01-02 15:04 - 01:02:03\n\n"), content)
	assert.Contains(t, content, "First line with **bold**.\n\nSecond paragraph.")
	assert.True(t, strings.HasSuffix(content, "\n"))
	assert.NotContains(t, content, "\u00a0")
	assert.NotContains(t, content, "&nbsp;")
}

func TestRenderEmptyDescription(t *testing.T) {
	w := NewWriter(t.TempDir())

	content, err := w.Render(episode(t, "Quiet", ""))
	require.NoError(t, err)
	assert.Equal(t, "Quiet\n\n2021-01-02 15:04 - 01:02:03\n\n\n", content)
}

func TestRenderEmbeddedPlayer(t *testing.T) {
	w := NewWriter(t.TempDir())
	ep := episode(t, "Embed", `<p>Listen here:</p><audio src="https://cdn.example.com/clip.mp3"></audio>`)

	content, err := w.Render(ep)
	require.NoError(t, err)
	assert.Contains(t, content, "Listen here:")
	assert.Contains(t, content, "[audio](https://cdn.example.com/clip.mp3)")
}

func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	ep := episode(t, "Hello, World!", "<p>v1</p>")

	target := filepath.Join(dir, ep.TextFilename())
	require.NoError(t, os.WriteFile(target, []byte("stale content that is much longer than the new one"), 0o644))

	path, err := w.Write(ep)
	require.NoError(t, err)
	assert.Equal(t, target, path)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!\n\n2021-01-02 15:04 - 01:02:03\n\nv1\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "7-hello-world.txt", entries[0].Name())
}

func TestWriteMissingDirectory(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "does", "not", "exist"))

	_, err := w.Write(episode(t, "Nowhere", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrFilesystem), "expected ErrFilesystem, got %v", err)
}

func TestWriteOverDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	ep := episode(t, "Hello, World!", "<p>v1</p>")

	blocker := filepath.Join(dir, ep.TextFilename())
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o755))

	_, err := w.Write(ep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrFilesystem), "expected ErrFilesystem, got %v", err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
