package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cli, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultFeedURL, cli.FeedURL)
	assert.Equal(t, "episodes", cli.TargetDir)
	assert.Equal(t, 50, cli.Concurrency)
	assert.Equal(t, 30*time.Second, cli.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cli.IdleTimeout)
	assert.Equal(t, 10, cli.MaxRedirects)
	assert.Empty(t, cli.Journal)
	assert.False(t, cli.ShowNotes)
	assert.False(t, cli.Verbose)
}

func TestFlags(t *testing.T) {
	cli, err := Parse([]string{
		"--feed-url", "https://example.com/feed.xml",
		"--target-dir", "/tmp/mirror",
		"-c", "4",
		"--idle-timeout", "2m",
		"--journal", "runs.db",
		"--show-notes",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/feed.xml", cli.FeedURL)
	assert.Equal(t, "/tmp/mirror", cli.TargetDir)
	assert.Equal(t, 4, cli.Concurrency)
	assert.Equal(t, 2*time.Minute, cli.IdleTimeout)
	assert.Equal(t, "runs.db", cli.Journal)
	assert.True(t, cli.ShowNotes)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("PODMIRROR_CONCURRENCY", "7")
	t.Setenv("PODMIRROR_TARGET_DIR", "from-env")

	cli, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cli.Concurrency)
	assert.Equal(t, "from-env", cli.TargetDir)
}

func TestYAMLConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podmirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feed_url: https://example.com/other.xml
concurrency: 8
idle-timeout: 90s
show_notes: true
`), 0o644))

	cli, err := Parse([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/other.xml", cli.FeedURL)
	assert.Equal(t, 8, cli.Concurrency)
	assert.Equal(t, 90*time.Second, cli.IdleTimeout)
	assert.True(t, cli.ShowNotes)
	assert.Equal(t, "episodes", cli.TargetDir)
}

func TestValidate(t *testing.T) {
	invalid := [][]string{
		{"--concurrency", "0"},
		{"--feed-url", " "},
		{"--target-dir", ""},
		{"--idle-timeout", "0s"},
		{"--connect-timeout", "-1s"},
		{"--max-redirects", "-1"},
	}

	for _, args := range invalid {
		_, err := Parse(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PODMIRROR_TEST_DOTENV=loaded\n"), 0o644))
	t.Setenv("PODMIRROR_TEST_DOTENV", "")
	os.Unsetenv("PODMIRROR_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("PODMIRROR_TEST_DOTENV"))
}
