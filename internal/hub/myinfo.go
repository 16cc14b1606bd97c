package hub

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// myInfoCoalesceWindow is how long MyINFO broadcasts are held back waiting
// for further changes before actually sending (spec.md §4.5: "MyINFO
// updates are coalesced over a 4 second window").
const myInfoCoalesceWindow = 4 * time.Second

// MyInfoState is the set of fields that serialize into a $MyINFO string.
type MyInfoState struct {
	Nick        string
	Description string
	Tag         string
	Speed       string
	Email       string
	ShareSize   int64
	Away        bool
	IsOperator  bool
}

// FormatMyInfo renders the $MyINFO command for broadcasting to a hub
// (spec.md §6).
func FormatMyInfo(s MyInfoState) string {
	away := "A"
	if !s.Away {
		away = " "
	}
	status := fmt.Sprintf("<%s>%s", s.Tag, away)
	return nmdc.FrameCommand("MyINFO", "$ALL "+s.Nick, s.Description+status+"$ $"+s.Speed+"\x01$"+s.Email+"$"+fmt.Sprintf("%d", s.ShareSize)+"$")
}

// ParseMyInfo decodes an inbound "$MyINFO $ALL <nick> ..." line (the
// inverse of FormatMyInfo), used to populate the roster from real hub
// traffic. ok is false for anything that doesn't match the expected shape.
func ParseMyInfo(line string) (MyInfoState, bool) {
	const prefix = "$MyINFO $ALL "
	if !strings.HasPrefix(line, prefix) {
		return MyInfoState{}, false
	}
	sp := strings.SplitN(strings.TrimPrefix(line, prefix), "$", 2)
	if len(sp) != 2 {
		return MyInfoState{}, false
	}
	nick := sp[0]
	fields := strings.Split(sp[1], "$")
	if len(fields) < 5 {
		return MyInfoState{}, false
	}
	desc, tag, away := splitDescTagAway(fields[0])
	speed := strings.TrimSuffix(fields[2], "\x01")
	email := fields[3]
	shareSize, _ := strconv.ParseInt(fields[4], 10, 64)
	return MyInfoState{
		Nick: nick, Description: desc, Tag: tag, Speed: speed,
		Email: email, ShareSize: shareSize, Away: away,
	}, true
}

// splitDescTagAway pulls apart "<description><tag>A" into its three parts:
// the away flag is the single trailing character, and the tag is the last
// '<...>' group before it.
func splitDescTagAway(s string) (desc, tag string, away bool) {
	if s == "" {
		return "", "", false
	}
	away = strings.HasSuffix(s, "A")
	body := s
	if len(body) > 0 {
		body = body[:len(body)-1]
	}
	open := strings.LastIndex(body, "<")
	if open < 0 || !strings.HasSuffix(body, ">") {
		return body, "", away
	}
	return body[:open], body[open+1 : len(body)-1], away
}

// tagIsPassive reports whether a $MyINFO tag's connectivity token marks the
// user as passive ("M:P" vs "M:A"), used by the connect-negotiation
// precedence rule.
func tagIsPassive(tag string) bool {
	return strings.Contains(tag, "M:P")
}

// Coalescer batches MyINFO updates behind a timer so that rapid successive
// share or status changes produce a single broadcast. Coalescing is
// suppressed while a share scan is still running, so the eventual broadcast
// reflects final post-scan totals rather than a half-scanned share size.
type Coalescer struct {
	pending   *MyInfoState
	fireAt    time.Time
	scanBusy  bool
}

// NewCoalescer returns an idle Coalescer.
func NewCoalescer() *Coalescer { return &Coalescer{} }

// SetScanBusy records whether a share scan is currently running; while true,
// Due never fires.
func (c *Coalescer) SetScanBusy(busy bool) { c.scanBusy = busy }

// Queue schedules s to be sent once the coalescing window elapses, pushing
// the deadline out if already pending.
func (c *Coalescer) Queue(s MyInfoState, now time.Time) {
	c.pending = &s
	c.fireAt = now.Add(myInfoCoalesceWindow)
}

// Due returns the coalesced state and clears it if the window has elapsed
// and no scan is in progress; ok is false otherwise.
func (c *Coalescer) Due(now time.Time) (s MyInfoState, ok bool) {
	if c.pending == nil || c.scanBusy || now.Before(c.fireAt) {
		return MyInfoState{}, false
	}
	s = *c.pending
	c.pending = nil
	return s, true
}
