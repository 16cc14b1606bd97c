package control

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/shakespeer/sphubd/internal/config"
	"github.com/shakespeer/sphubd/internal/nmdc"
)

// Snapshot is everything pushed to a frontend immediately after accept
// (spec.md §4.9): server version, init level, configured port, and the
// pre-rendered events the provider supplies. The daemon's provider supplies
// share stats, hub-add events and cached filelist filenames; it sends no
// queue contents, rosters, history or transfers.
type Snapshot struct {
	ServerVersion string
	InitLevel     InitLevel
	Port          int
	Events        []Event // pre-rendered share-stats/hub-add/stored-filelists events
}

// SnapshotProvider is implemented by the daemon context; it is asked for a
// fresh Snapshot on every new connection so late-attaching frontends see
// current state rather than a stale cache.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Dispatcher executes a parsed Command against the daemon context.
type Dispatcher interface {
	Dispatch(cmd Command) []Event
}

// Conn is one attached frontend connection. ID tags every log line for that
// connection so two frontends attached at the same time can be told apart
// in the daemon's shared log stream.
type Conn struct {
	ID uuid.UUID

	nc net.Conn
	w  *bufio.Writer
	mu sync.Mutex
}

func newConn(nc net.Conn) *Conn {
	return &Conn{ID: uuid.New(), nc: nc, w: bufio.NewWriter(nc)}
}

// Send writes an Event, safe for concurrent callers (the daemon loop is
// single-threaded, but a connection may also be closed from a watchdog).
func (c *Conn) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.WriteString(e.Format()); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.nc.Close() }

// Server accepts frontend connections on a UNIX-domain socket and,
// optionally, a TCP port (spec.md §4.9).
type Server struct {
	snapshots SnapshotProvider
	dispatch  Dispatcher

	unixListener net.Listener
	tcpListener  net.Listener

	mu    sync.Mutex
	conns map[*Conn]bool
}

// NewServer returns a Server that pulls snapshots from sp and dispatches
// commands through d.
func NewServer(sp SnapshotProvider, d Dispatcher) *Server {
	return &Server{snapshots: sp, dispatch: d, conns: make(map[*Conn]bool)}
}

// ListenUnix binds the UNIX-domain control socket at path, removing any
// stale socket file left by a previous unclean shutdown.
func (s *Server) ListenUnix(path string) error {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.unixListener = l
	return nil
}

// ListenTCP additionally binds a TCP control port, per the -p CLI flag.
func (s *Server) ListenTCP(port int) error {
	l, err := net.Listen("tcp", addrForPort(port))
	if err != nil {
		return err
	}
	s.tcpListener = l
	return nil
}

func addrForPort(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}

// UnixListener returns the listener bound by ListenUnix, or nil if it was
// never called. Used by the daemon loop to hand the listener to Serve.
func (s *Server) UnixListener() net.Listener { return s.unixListener }

// TCPListener returns the listener bound by ListenTCP, or nil if it was
// never called.
func (s *Server) TCPListener() net.Listener { return s.tcpListener }

// Serve accepts connections on l until it returns an error (typically
// because Close was called), handing each to handle.
func (s *Server) Serve(l net.Listener, handle func(*Conn)) {
	for {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		c := newConn(nc)
		s.mu.Lock()
		s.conns[c] = true
		s.mu.Unlock()
		go s.serveConn(c, handle)
	}
}

func (s *Server) serveConn(c *Conn, handle func(*Conn)) {
	config.Debugf(nil, "control connection %s attached", c.ID)
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
		config.Debugf(nil, "control connection %s detached", c.ID)
	}()

	snap := s.snapshots.Snapshot()
	if err := c.Send(Event{Name: EvtServerVersion, Fields: []string{snap.ServerVersion}}); err != nil {
		return
	}
	if err := c.Send(Event{Name: EvtInitCompletion, Fields: []string{strconv.Itoa(int(snap.InitLevel))}}); err != nil {
		return
	}
	if err := c.Send(Event{Name: EvtPort, Fields: []string{strconv.Itoa(snap.Port)}}); err != nil {
		return
	}
	for _, e := range snap.Events {
		if err := c.Send(e); err != nil {
			return
		}
	}

	if handle != nil {
		handle(c)
	}

	fr := nmdc.NewFrameReader(bufio.NewReader(c.nc))
	for {
		line, err := fr.ReadCommand()
		if err != nil {
			return
		}
		cmd := ParseCommand(line)
		for _, e := range s.dispatch.Dispatch(cmd) {
			if err := c.Send(e); err != nil {
				return
			}
		}
	}
}

// Broadcast sends e to every currently attached frontend, used by the
// daemon loop for events not tied to a single connection's request
// (share-stats, hub-add, transfer-stats, ...).
func (s *Server) Broadcast(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if err := c.Send(e); err != nil {
			config.Debugf(nil, "control broadcast to a stalled frontend dropped: %v", err)
		}
	}
}

// Close shuts down both listeners and every connected frontend.
func (s *Server) Close() {
	if s.unixListener != nil {
		s.unixListener.Close()
	}
	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}
