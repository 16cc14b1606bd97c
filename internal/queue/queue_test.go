package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakespeer/sphubd/internal/bus"
)

const testTTH = "IP4CTCABTUE6ZHZLFS2OP5W7EMN3LMFS65H7D2Y"

func newTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	dir := t.TempDir()
	q, err := Open(dir, bus.NewTopics())
	require.NoError(t, err)
	return q, dir
}

// Scenario 2: queue add & persistence.
func TestAddAndRestart(t *testing.T) {
	q, dir := newTestQueue(t)
	_, err := q.Add("foo", `remote\path\file.img`, 17471142, "file.img", testTTH)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := Open(dir, bus.NewTopics())
	require.NoError(t, err)
	src, ok := q2.GetNextSourceForNick("foo")
	require.True(t, ok)
	assert.Equal(t, "file.img", src.TargetFilename)
	assert.EqualValues(t, 17471142, src.Size)
	assert.EqualValues(t, 0, src.Offset)
	assert.False(t, src.IsFilelist)
}

// Scenario 3: TTH-aware source merge.
func TestTTHMergesIntoExistingTarget(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Add("foo", `remote\path\file.img`, 17471142, "file.img", testTTH)
	require.NoError(t, err)

	_, err = q.Add("bar", "another/path/to_the/same-file.img", 17471142, "same-file.img", testTTH)
	require.NoError(t, err)

	assert.Len(t, q.targets, 1)
	src, ok := q.GetNextSourceForNick("bar")
	require.True(t, ok)
	assert.Equal(t, "file.img", src.TargetFilename)
	assert.Equal(t, "another/path/to_the/same-file.img", src.SourceFilename)
}

// Scenario 4: name collision with differing TTH.
func TestNameCollisionDifferentTTHSuffixes(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Add("foo", "remote/path/file.img", 17471142, "file.img", testTTH)
	require.NoError(t, err)

	_, err = q.Add("bar", "other/file.img", 17471142, "file.img", "DIFFERENTTTHTHATTHEPREVIOUSONE000123456")
	require.NoError(t, err)

	assert.Contains(t, q.targets, "file-1.img")
}

func TestPriorityZeroNeverSelected(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Add("foo", "a/b.img", 100, "b.img", testTTH)
	require.NoError(t, err)
	require.NoError(t, q.SetPriority("b.img", 0))
	_, ok := q.GetNextSourceForNick("foo")
	assert.False(t, ok)
}

func TestJournalReplayCompactionIsIdempotent(t *testing.T) {
	q, dir := newTestQueue(t)
	_, err := q.Add("foo", "a/b.img", 100, "b.img", testTTH)
	require.NoError(t, err)
	_, err = q.Add("foo", "a/c.img", 200, "c.img", "")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	before, err := Open(dir, bus.NewTopics())
	require.NoError(t, err)
	require.NoError(t, before.Close())

	after, err := Open(dir, bus.NewTopics())
	require.NoError(t, err)
	assert.Equal(t, len(before.targets), len(after.targets))
	assert.Contains(t, after.targets, "b.img")
	assert.Contains(t, after.targets, "c.img")

	// journal file must actually have shrunk to a single snapshot of each
	// record kind rather than growing without bound.
	info, err := os.Stat(filepath.Join(dir, "queue2.db"))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(4096))
}

func TestAutoSearchExcludesRecentlySearchedTTH(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Add("foo", "a/b.img", 100, "b.img", testTTH)
	require.NoError(t, err)

	tth, ok := q.AutoSearchCandidate()
	require.True(t, ok)
	assert.Equal(t, testTTH, tth)

	_, ok = q.AutoSearchCandidate()
	assert.False(t, ok, "same TTH must not be offered again immediately")
}

func TestRemoveTargetCascadesSources(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Add("foo", "a/b.img", 100, "b.img", testTTH)
	require.NoError(t, err)
	require.NoError(t, q.RemoveTarget("b.img", false))
	_, ok := q.GetNextSourceForNick("foo")
	assert.False(t, ok)
}
