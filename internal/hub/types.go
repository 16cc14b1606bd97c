// Package hub implements one state machine per connected hub: lock/key
// handshake, user roster, chat, searches, slot accounting and reconnection
// (spec.md §4.5).
//
// Grounded on the teacher's Options/configstruct tagging idiom
// (backend/local/local.go's init()/fs.RegInfo registration) adapted to hub
// connection options, and on accounting.go's small bounded-collection
// pattern for the chat/user-command rings.
package hub

import (
	"time"

	"golang.org/x/text/encoding"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// State is the hub connection's handshake/session state.
type State int

const (
	StateConnecting State = iota
	StateMyNick
	StateLock
	StatePassword
	StateLoggedIn
	StateRunning
	StateDisconnected
)

// SlotKind is the grant type returned by slot arbitration (spec.md §4.5).
type SlotKind int

const (
	SlotNone SlotKind = iota
	SlotFree
	SlotExtra
	SlotNormal
)

// User is a roster entry, populated from $MyINFO and removed on $Quit.
type User struct {
	Nick        string
	Description string
	Tag         string
	Speed       string
	Email       string
	ShareSize   int64
	IsOperator  bool
	Passive     bool // parsed from the tag's "M:P" connectivity token
}

// Options configures one hub connection (spec.md §3 "Hub" tuple).
type Options struct {
	Address  string
	Port     int
	Nick     string
	Password string
	Encoding string // resolved via nmdc.NamedEncoding
	Passive  bool
}

// Message is one chat line kept in the ring buffer.
type Message struct {
	From string
	Text string
	At   time.Time
}

// Hub is one connected (or reconnecting) hub.
type Hub struct {
	Opt   Options
	State State

	Me    User
	Users map[string]*User // 509-way in the source; a Go map here

	encoding encoding.Encoding

	ExtendedProtocol bool
	IsRegistered     bool
	LoggedIn         bool

	ReconnectAttempt int
	KickCounter      int
	KickTime         time.Time
	ExpectedDisconnect bool

	LastActivity time.Time
	lock         string // the hub's $Lock challenge, kept for our $Key

	chat     *ring[Message]
	userCmds *ring[string]

	usedSlots int // per-hub slot accounting, if configured per-hub

	MyInfo  *Coalescer
	Outbox  []string // formatted commands waiting to be written to the socket
}

// New constructs a Hub in StateConnecting.
func New(opt Options) *Hub {
	return &Hub{
		Opt:      opt,
		State:    StateConnecting,
		Users:    make(map[string]*User),
		encoding: nmdc.NamedEncoding(opt.Encoding),
		chat:     newRing[Message](100),
		userCmds: newRing[string](100),
		MyInfo:   NewCoalescer(),
	}
}

// QueueWrite appends a formatted command to the outbox for the connection
// goroutine to flush.
func (h *Hub) QueueWrite(cmd string) { h.Outbox = append(h.Outbox, cmd) }

// DrainOutbox returns and clears pending outbound commands.
func (h *Hub) DrainOutbox() []string {
	out := h.Outbox
	h.Outbox = nil
	return out
}

// Address uniquely identifies a hub connection (host:port).
func (h *Hub) String() string { return h.Opt.Address }
