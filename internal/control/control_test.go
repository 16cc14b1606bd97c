package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandSplitsFields(t *testing.T) {
	cmd := ParseCommand("search$hub1$ubuntu iso")
	assert.Equal(t, "search", cmd.Name)
	assert.Equal(t, []string{"hub1", "ubuntu iso"}, cmd.Fields)
}

func TestEventFormatRoundTrips(t *testing.T) {
	e := Event{Name: "port", Fields: []string{"412"}}
	assert.Equal(t, "$port 412|", e.Format())
}

func TestPruneStaleFilelistsRemovesOldOnly(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, "files.xml.alice.bz2")
	stale := filepath.Join(dir, "files.xml.bob.bz2")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	remaining, err := PruneStaleFilelists(dir, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"files.xml.alice.bz2"}, remaining)

	_, statErr := os.Stat(stale)
	assert.True(t, os.IsNotExist(statErr))
}
