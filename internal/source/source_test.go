package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeFile(t, `
sources:
  - url: https://techcrunch.com/feed/
  - name: ieee-ai
    kind: PAGE
    url: https://spectrum.ieee.org/topic/artificial-intelligence
    topic: AI
    limit: 5
`)
	specs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, KindFeed, specs[0].Kind)
	assert.Equal(t, "https://techcrunch.com/feed/", specs[0].Name)
	assert.Equal(t, DefaultFeedLimit, specs[0].Limit)

	assert.Equal(t, KindPage, specs[1].Kind)
	assert.Equal(t, "AI", specs[1].Topic)
	assert.Equal(t, 5, specs[1].Limit)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "sources: []\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "sources:\n  - name: x\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "sources:\n  - url: http://x\n    kind: ftp\n"))
	assert.Error(t, err)
}
