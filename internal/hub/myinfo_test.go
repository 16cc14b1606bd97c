package hub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMyInfoRoundTrip(t *testing.T) {
	s := MyInfoState{
		Nick: "Bob", Description: "a peer", Tag: "++ V:1.0,M:P,H:1/0/0,S:5",
		Speed: "5", Email: "bob@example.com", ShareSize: 123456, Away: false,
	}
	wire := FormatMyInfo(s)
	assert.Equal(t, "$MyINFO $ALL Bob$a peer<++ V:1.0,M:P,H:1/0/0,S:5> $ $5\x01$bob@example.com$123456$|", wire)

	parsed, ok := ParseMyInfo(strings.TrimSuffix(wire, "|"))
	require.True(t, ok)
	assert.Equal(t, "Bob", parsed.Nick)
	assert.Equal(t, "a peer", parsed.Description)
	assert.Equal(t, "++ V:1.0,M:P,H:1/0/0,S:5", parsed.Tag)
	assert.Equal(t, "5", parsed.Speed)
	assert.Equal(t, "bob@example.com", parsed.Email)
	assert.EqualValues(t, 123456, parsed.ShareSize)
	assert.False(t, parsed.Away)
}

func TestApplyMyInfoMarksPassiveUser(t *testing.T) {
	h := New(Options{Nick: "me"})
	wire := FormatMyInfo(MyInfoState{Nick: "Bob", Tag: "++ M:P", Speed: "5"})
	parsed, ok := ParseMyInfo(strings.TrimSuffix(wire, "|"))
	require.True(t, ok)
	h.ApplyMyInfo(parsed)
	assert.True(t, h.UserIsPassive("Bob"))
	assert.False(t, h.UserIsPassive("unknown-nick"))
}
