// Package peer implements the client-to-client connection state machine:
// handshake, direction negotiation, slot arbitration, and the
// upload/download transfer engine (spec.md §4.6).
//
// Grounded on backend/local/local.go's Object/ReadCloser split for file
// handles and on backend/cache's chunked-read accounting idiom, adapted to
// NMDC's request/response framing instead of an HTTP range request.
package peer

import (
	"time"

	"github.com/google/uuid"
)

// Direction is which way bytes flow once negotiation completes.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionUpload
	DirectionDownload
)

// State is the peer connection's handshake/transfer state (spec.md §4.6).
type State int

const (
	StateMyNick State = iota
	StateLock
	StateDirection
	StateKey
	StateReady
	StateRequest
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateMyNick:
		return "mynick"
	case StateLock:
		return "lock"
	case StateDirection:
		return "direction"
	case StateKey:
		return "key"
	case StateReady:
		return "ready"
	case StateRequest:
		return "request"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// SlotState mirrors hub.SlotKind without importing the hub package, since
// a peer connection is arbitrated by whichever hub's SlotManager owns it.
type SlotState int

const (
	SlotNone SlotState = iota
	SlotFree
	SlotExtra
	SlotNormal
)

// Capabilities are the $Supports tokens a peer advertised.
type Capabilities struct {
	XMLBZList bool
	ADCGet    bool
	TTHL      bool
	TTHF      bool
}

// Timeouts, per spec.md §3 "Peer connection": a handshake must complete
// within 90s of creation; an idle Busy transfer aborts after 300s; a Ready
// connection with no requests for 180s is dropped.
const (
	HandshakeTimeout    = 90 * time.Second
	TransferIdleTimeout = 300 * time.Second
	ReadyIdleTimeout    = 180 * time.Second
)

// Connection is one peer-to-peer client connection. ID tags its log lines so
// several concurrent connections to the same nick (upload and download
// directions opened separately) stay distinguishable.
type Connection struct {
	ID uuid.UUID

	Hub       string
	Nick      string
	Direction Direction
	State     State
	Slot      SlotState
	Caps      Capabilities

	myChallenge     int
	remoteChallenge int
	isInitiator     bool
	localLock       string

	CurrentTarget string // queue target filename, if downloading
	LocalFile     string // path on disk currently open
	Offset        int64
	FileSize      int64
	BytesToXfer   int64
	BytesDone     int64

	LastActivity         time.Time
	LastTransferActivity time.Time
	TransferStart        time.Time
	CreatedAt            time.Time
}

// New returns a Connection in StateMyNick for a just-accepted or
// just-connected socket.
func New(hub string, isInitiator bool, now time.Time) *Connection {
	return &Connection{
		ID:           uuid.New(),
		Hub:          hub,
		State:        StateMyNick,
		isInitiator:  isInitiator,
		CreatedAt:    now,
		LastActivity: now,
	}
}
