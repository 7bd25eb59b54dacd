package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("yaml"))
}

func TestNew_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	log.Info("started", "port", 8000)
	assert.Contains(t, buf.String(), `"msg":"started"`)

	buf.Reset()
	log = New(Config{Output: &buf})
	log.Debug("below threshold")
	assert.Empty(t, buf.String())
}
