package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSRFileResponse(t *testing.T) {
	resp, ok := ParseSR("Bob file.img\x0517471142 3/5\x05TestHub (1.2.3.4:412)")
	require.True(t, ok)
	assert.False(t, resp.IsDirectory)
	assert.Equal(t, "Bob", resp.Nick)
	assert.Equal(t, "file.img", resp.Filename)
	assert.EqualValues(t, 17471142, resp.Size)
	assert.Equal(t, 3, resp.FreeSlots)
	assert.Equal(t, 5, resp.TotalSlots)
	assert.Equal(t, "1.2.3.4:412", resp.HubAddress)
}

func TestParseSRDirectoryResponse(t *testing.T) {
	resp, ok := ParseSR("Bob shared-folder\x052/5\x05TestHub (1.2.3.4:412)")
	require.True(t, ok)
	assert.True(t, resp.IsDirectory)
	assert.Equal(t, "shared-folder", resp.Filename)
}

func TestRegistryMatchByTTH(t *testing.T) {
	r := NewRegistry()
	r.Add(Request{ID: 1, TTH: "ABC"})
	id, ok := r.Match("anything.img", "ABC", 100)
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestRegistryNegativeOneInsertedAtHeadMatchesLast(t *testing.T) {
	r := NewRegistry()
	r.Add(Request{ID: -1, Pattern: []string{"foo"}})
	r.Add(Request{ID: 2, Pattern: []string{"foo"}})
	id, ok := r.Match("foo.img", "", 0)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestRegistryMatchBySubstringCasefold(t *testing.T) {
	r := NewRegistry()
	r.Add(Request{ID: 5, Pattern: []string{"ubuntu", "iso"}})
	_, ok := r.Match("debian-netinst.iso", "", 0)
	assert.False(t, ok)
	id, ok := r.Match("Ubuntu-22.04.ISO", "", 0)
	require.True(t, ok)
	assert.Equal(t, 5, id)
}
