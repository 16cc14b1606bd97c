package hub

import (
	"fmt"
	"time"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/nmdc"
)

// reconnectDelay is the backoff before attempt n (1-indexed), capped at 10
// attempts (spec.md §4.5: "backoff of attempt^2 * 5 seconds, up to 10
// attempts").
func reconnectDelay(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(attempt*attempt*5) * time.Second
}

// RegisterKick records a kick and reports whether auto-reconnect should now
// be disabled: three kicks within 60 seconds disables it (spec.md §4.5).
func (h *Hub) RegisterKick(now time.Time) (disableReconnect bool) {
	if h.KickCounter == 0 || now.Sub(h.KickTime) > 60*time.Second {
		h.KickCounter = 1
		h.KickTime = now
		return false
	}
	h.KickCounter++
	if h.KickCounter >= 3 {
		return true
	}
	return false
}

// NextReconnect advances ReconnectAttempt and returns the delay to wait
// before the next connection attempt.
func (h *Hub) NextReconnect() time.Duration {
	h.ReconnectAttempt++
	return reconnectDelay(h.ReconnectAttempt)
}

// ResetReconnect clears backoff state after a successful login.
func (h *Hub) ResetReconnect() {
	h.ReconnectAttempt = 0
}

// HandleLock processes a hub's $Lock command: records the challenge, the
// extended-protocol flag, and returns the $Key (or $Supports+$Key for
// extended hubs) to send in reply (spec.md §4.5, §6).
func (h *Hub) HandleLock(lock string) (replies []string) {
	h.lock = lock
	h.ExtendedProtocol = nmdc.IsExtendedProtocol(lock)
	if h.ExtendedProtocol {
		replies = append(replies, nmdc.FrameCommand("Supports", "NoGetINFO NoHello UserIP2"))
	}
	replies = append(replies, nmdc.FrameCommand("Key", nmdc.DeriveKey(lock)))
	h.State = StateLock
	return replies
}

// HandleHello transitions into the logged-in state once the hub echoes our
// nick (spec.md §4.5: handshake completes on our own $Hello).
func (h *Hub) HandleHello(nick string) bool {
	if nick != h.Opt.Nick {
		return false
	}
	h.State = StateLoggedIn
	h.LoggedIn = true
	h.ResetReconnect()
	return true
}

// AddOrUpdateUser applies a $MyINFO for nick, inserting or replacing the
// roster entry.
func (h *Hub) AddOrUpdateUser(u User) {
	h.Users[u.Nick] = &u
	if u.Nick == h.Opt.Nick {
		h.Me = u
	}
}

// ApplyMyInfo folds a parsed $MyINFO into the roster, deriving the
// passive/active connectivity flag from the tag (spec.md §9 Open Question:
// connect-negotiation precedence needs to know the peer's own mode).
func (h *Hub) ApplyMyInfo(s MyInfoState) {
	h.AddOrUpdateUser(User{
		Nick: s.Nick, Description: s.Description, Tag: s.Tag,
		Speed: s.Speed, Email: s.Email, ShareSize: s.ShareSize,
		Passive: tagIsPassive(s.Tag),
	})
}

// UserIsPassive reports the roster's current belief about nick's
// connectivity mode; unknown nicks are assumed active (the common case),
// so a best-effort connect is attempted rather than failing fast on a
// nick we simply haven't seen a $MyINFO for yet.
func (h *Hub) UserIsPassive(nick string) bool {
	u, ok := h.Users[nick]
	return ok && u.Passive
}

// RemoveUser applies a $Quit for nick.
func (h *Hub) RemoveUser(nick string) {
	delete(h.Users, nick)
}

// UserCount is the roster size, used for share-size and hub-count display.
func (h *Hub) UserCount() int { return len(h.Users) }

// pushChat records a chat line for later retrieval by newly attached
// frontends (spec.md §4.5: "a ring of 100 per hub").
func (h *Hub) pushChat(from, text string, at time.Time) {
	h.chat.push(Message{From: from, Text: text, At: at})
}

// ChatHistory returns the retained chat lines, oldest first.
func (h *Hub) ChatHistory() []Message { return h.chat.items() }

// pushUserCommand records a raw $UserCommand line for replay to frontends.
func (h *Hub) pushUserCommand(raw string) {
	h.userCmds.push(raw)
}

// UserCommandHistory returns the retained $UserCommand lines, oldest first.
func (h *Hub) UserCommandHistory() []string { return h.userCmds.items() }

// HandleChat dispatches an incoming public chat line ("<nick> text" framed
// without a leading $) or a $To: private message, publishing bus events and
// recording history.
func (h *Hub) HandleChat(raw string, events *bus.Topics) {
	h.pushChat("", raw, time.Now())
	if events != nil {
		events.StatusMessage.Publish(bus.StatusMessage{HubAddress: h.Opt.Address, Message: raw})
	}
}

// HandleUserCommand records a $UserCommand line from the hub.
func (h *Hub) HandleUserCommand(fields []string) {
	h.pushUserCommand(nmdc.FrameCommand("UserCommand", fields...))
}

// Describe renders a human-readable label for logs and the control channel.
func (h *Hub) Describe() string {
	return fmt.Sprintf("%s (%s)", h.Opt.Address, h.State)
}

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateMyNick:
		return "mynick"
	case StateLock:
		return "lock"
	case StatePassword:
		return "password"
	case StateLoggedIn:
		return "logged_in"
	case StateRunning:
		return "running"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
