package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false, false)

	log.Debugw("hidden", "episode", "1-a")
	log.Warnw("Download failed", "episode", "2-b")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "Download failed")
	assert.Contains(t, buf.String(), "2-b")
}

func TestVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, true, false)

	log.Debugw("shown", "episode", "1-a")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false, true)

	log.Infow("Parsed feed", "items", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Parsed feed", entry["msg"])
	assert.Equal(t, "podmirror", entry["logger"])
	assert.EqualValues(t, 3, entry["items"])
}
