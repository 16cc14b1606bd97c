package peer

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionTieBreakInitiatorUploads(t *testing.T) {
	c := New("hub", true, time.Now())
	c.HandleLock("me", "EXTENDEDPROTOCOL_lock", Capabilities{})
	c.HandleDirection("Download", c.myChallenge)
	assert.Equal(t, DirectionUpload, c.Direction)
}

func TestDirectionHigherChallengeDownloads(t *testing.T) {
	c := New("hub", false, time.Now())
	c.HandleLock("me", "EXTENDEDPROTOCOL_lock", Capabilities{})
	c.HandleDirection("Upload", c.myChallenge+1)
	assert.Equal(t, DirectionUpload, c.Direction)

	c2 := New("hub", false, time.Now())
	c2.HandleLock("me", "EXTENDEDPROTOCOL_lock", Capabilities{})
	c2.HandleDirection("Upload", c2.myChallenge-1000000)
	assert.Equal(t, DirectionDownload, c2.Direction)
}

func TestRequestForPreferenceOrder(t *testing.T) {
	c := New("hub", false, time.Now())
	c.Caps = Capabilities{ADCGet: true, TTHF: true}
	req := c.RequestFor("foo.img", "SOMETTH", 0, 100)
	assert.Equal(t, "$ADCGET file TTH/SOMETTH 0 100|", req)

	c.Caps = Capabilities{ADCGet: true}
	req = c.RequestFor("foo.img", "SOMETTH", 0, 100)
	assert.Equal(t, "$ADCGET file foo.img 0 100|", req)

	c.Caps = Capabilities{XMLBZList: true}
	req = c.RequestFor("foo.img", "", 0, 100)
	assert.Equal(t, "$UGetBlock 0 100 foo.img|", req)

	c.Caps = Capabilities{}
	req = c.RequestFor("foo.img", "", 5, 100)
	assert.Contains(t, req, "$Get")
	assert.Contains(t, req, "5+1")
}

func TestHandleLockDirectionIsSpaceDelimited(t *testing.T) {
	c := New("hub", true, time.Now())
	replies := c.HandleLock("me", "EXTENDEDPROTOCOL_lock", Capabilities{})
	var direction string
	for _, r := range replies {
		if strings.HasPrefix(r, "$Direction ") {
			direction = r
		}
	}
	require.NotEmpty(t, direction)
	assert.Equal(t, "$Direction Upload "+strconv.Itoa(c.myChallenge)+"|", direction)
}

func TestResumeOffsetNewFile(t *testing.T) {
	dir := t.TempDir()
	offset, finished, err := ResumeOffset(dir+"/sub/partial.img", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)
	assert.False(t, finished)
}

func TestStalledAfterIdleTimeout(t *testing.T) {
	c := New("hub", false, time.Now())
	c.BeginTransfer("/tmp/x", 0, 10, 10, time.Now().Add(-400*time.Second))
	assert.True(t, c.Stalled(time.Now()))
}
