package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeQueue struct {
	matched    []string
	targetDir  map[string]string
}

func (f *fakeQueue) AddSourceForTTH(tth, nick, sourceFilename string, size int64) (string, bool) {
	f.matched = append(f.matched, tth)
	return "target-" + tth, true
}

func (f *fakeQueue) TargetDirectoryOf(target string) (string, bool) {
	d, ok := f.targetDir[target]
	return d, ok
}

type fakeFetcher struct {
	requested []string
}

func (f *fakeFetcher) RequestFilelist(nick string, autoMatched bool) {
	f.requested = append(f.requested, nick)
}

func TestHandleSearchResponseTriggersFilelistForAutoSearchDirectory(t *testing.T) {
	q := &fakeQueue{targetDir: map[string]string{"target-TTH1": "some-dir"}}
	f := &fakeFetcher{}
	m := NewMatcher(q, f, nil)

	m.HandleSearchResponse("bob", "file.img", "TTH1", 100, true)
	assert.Equal(t, []string{"bob"}, f.requested)
}

func TestHandleSearchResponseSkipsFilelistForNonDirectory(t *testing.T) {
	q := &fakeQueue{targetDir: map[string]string{}}
	f := &fakeFetcher{}
	m := NewMatcher(q, f, nil)

	m.HandleSearchResponse("bob", "file.img", "TTH1", 100, true)
	assert.Empty(t, f.requested)
}

func TestFilelistStreamConsumesInBatches(t *testing.T) {
	q := &fakeQueue{targetDir: map[string]string{}}
	f := &fakeFetcher{}
	m := NewMatcher(q, f, nil)

	entries := make([]Entry, 120)
	for i := range entries {
		entries[i] = Entry{Path: "f", TTH: "T", Size: 1}
	}
	s := NewFilelistStream("bob", entries)

	n := m.Tick(s)
	assert.Equal(t, 50, n)
	assert.False(t, s.Done())
	m.Tick(s)
	m.Tick(s)
	assert.True(t, s.Done())
	assert.Len(t, q.matched, 120)
}
