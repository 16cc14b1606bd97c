package peer

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// HandleMyNick records the remote nick and advances to StateLock.
func (c *Connection) HandleMyNick(nick string) {
	c.Nick = nick
	c.State = StateLock
}

// HandleLock parses a peer's $Lock (and any trailing $Supports tokens),
// generates our direction challenge, and returns the reply commands to send:
// $MyNick and $Lock (only if no lock of ours was sent yet, see SetLocalLock),
// then $Supports, $Direction, $Key (spec.md §4.6). The $Key is derived from
// the lock token alone, without the trailing " Pk=..." tag.
func (c *Connection) HandleLock(myNick, lock string, caps Capabilities) []string {
	c.Caps = parseSupports(lock, caps)
	c.myChallenge = rand.Intn(1 << 30)
	challenge := lock
	if i := strings.IndexByte(lock, ' '); i >= 0 {
		challenge = lock[:i]
	}

	var replies []string
	if c.localLock == "" {
		c.localLock = localLock(myNick)
		replies = append(replies,
			nmdc.FrameCommand("MyNick", myNick),
			nmdc.FrameCommand("Lock", c.localLock+" "+nmdc.PkSuffix()))
	}
	replies = append(replies,
		nmdc.FrameCommand("Supports", "ADCGet TTHF TTHL XmlBZList"),
		nmdc.FrameCommandSpaced("Direction", directionToken(c.isInitiator), strconv.Itoa(c.myChallenge)),
		nmdc.FrameCommand("Key", nmdc.DeriveKey(challenge)),
	)
	c.State = StateDirection
	return replies
}

// GenerateLock returns a fresh lock challenge for the non-initiating side to
// send immediately on accept, before any $Lock has been received from the
// peer (spec.md §4.6: "On accept/connect, the non-initiating side sends
// $MyNick and $Lock").
func GenerateLock(myNick string) string {
	return localLock(myNick)
}

// SetLocalLock records a lock generated by GenerateLock so a later $Key from
// the peer can still be validated against it by HandleKey.
func (c *Connection) SetLocalLock(lock string) { c.localLock = lock }

// localLock derives a deterministic-looking per-connection lock challenge.
// A real lock need only be unpredictable to the peer computing the reply;
// here it's seeded from the nick plus a random suffix.
func localLock(myNick string) string {
	return "EXTENDEDPROTOCOL_" + myNick + strconv.Itoa(rand.Intn(1<<20))
}

func directionToken(isInitiator bool) string {
	if isInitiator {
		return "Upload"
	}
	return "Download"
}

func parseSupports(lock string, existing Capabilities) Capabilities {
	caps := existing
	for _, tok := range strings.Fields(lock) {
		switch strings.ToLower(tok) {
		case "xmlbzlist":
			caps.XMLBZList = true
		case "adcget":
			caps.ADCGet = true
		case "tthl":
			caps.TTHL = true
		case "tthf":
			caps.TTHF = true
		}
	}
	return caps
}

// HandleDirection negotiates transfer direction per spec.md §4.6: the side
// with the higher challenge downloads; on a tie the initiator uploads.
func (c *Connection) HandleDirection(remoteDir string, remoteChallenge int) {
	c.remoteChallenge = remoteChallenge
	remoteWantsUpload := strings.EqualFold(remoteDir, "Upload")

	switch {
	case c.myChallenge > remoteChallenge:
		c.Direction = DirectionDownload
	case c.myChallenge < remoteChallenge:
		c.Direction = DirectionUpload
	default:
		if c.isInitiator {
			c.Direction = DirectionUpload
		} else {
			c.Direction = DirectionDownload
		}
	}
	_ = remoteWantsUpload // remote's own stated direction is informational only; ours is derived from the challenge comparison
	c.State = StateKey
}

// HandleKey validates the peer's $Key against our own lock and advances to
// StateReady on success.
func (c *Connection) HandleKey(reply string) bool {
	if !nmdc.ValidateKey(c.localLock, reply) {
		return false
	}
	c.State = StateReady
	return true
}
