package hub

import (
	"strings"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// FormatConnectToMe asks targetNick to dial us at myAddr ("ip:port"),
// the active side's half of peer-connection setup. Space-delimited on the
// wire, like $Direction (spec.md §6).
func FormatConnectToMe(targetNick, myAddr string) string {
	return nmdc.FrameCommandSpaced("ConnectToMe", targetNick, myAddr)
}

// ParseConnectToMe decodes an inbound $ConnectToMe body (the whole line
// after "$ConnectToMe "): the target nick and the "ip:port" we're being
// asked to dial.
func ParseConnectToMe(body string) (targetNick, addr string, ok bool) {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// FormatRevConnectToMe asks targetNick to send us a $ConnectToMe in turn,
// used when we're passive and so cannot accept an inbound dial ourselves
// (spec.md §6, §9 Open Question: passive/passive precedence).
func FormatRevConnectToMe(myNick, targetNick string) string {
	return nmdc.FrameCommandSpaced("RevConnectToMe", myNick, targetNick)
}

// ParseRevConnectToMe decodes an inbound $RevConnectToMe body: the nick
// asking us to connect to them.
func ParseRevConnectToMe(body string) (fromNick, targetNick string, ok bool) {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// ErrBothPassive is returned by RequestConnectTo when neither side can
// accept an inbound connection.
type connectError string

func (e connectError) Error() string { return string(e) }

const ErrBothPassive connectError = "both ends are passive; cannot establish a peer connection"

// RequestConnectTo decides which connect command to send to reach
// peerNick, and builds it (spec.md §9 Open Question, resolved): send
// $RevConnectToMe only when we are passive ourselves; send $ConnectToMe
// (naming our own reachable address) otherwise. If we are passive and the
// peer is also known to be passive, neither side can dial, so this fails
// fast rather than sending a command that can never be answered.
func (h *Hub) RequestConnectTo(peerNick string, myAddr string, myPassive, peerPassive bool) (string, error) {
	if myPassive {
		if peerPassive {
			return "", ErrBothPassive
		}
		return FormatRevConnectToMe(h.Opt.Nick, peerNick), nil
	}
	return FormatConnectToMe(peerNick, myAddr), nil
}

// FormatMyPass replies to a hub's $GetPass with our configured password
// (spec.md §6: "$MyPass").
func FormatMyPass(password string) string {
	return nmdc.FrameCommand("MyPass", password)
}

// HandleGetPass advances into the password sub-state and returns the
// $MyPass reply to send (spec.md §4.5: "StatePassword" entered when the
// hub requires a registered nick's password).
func (h *Hub) HandleGetPass() string {
	h.State = StatePassword
	return FormatMyPass(h.Opt.Password)
}

// HandleBadPass reports a rejected password; the caller should treat this
// like any other fatal login failure and stop reconnecting until the
// operator updates the password.
func (h *Hub) HandleBadPass() {
	h.State = StateDisconnected
}
