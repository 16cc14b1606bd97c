package daemon

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shakespeer/sphubd/internal/control"
	"github.com/shakespeer/sphubd/internal/hub"
	"github.com/shakespeer/sphubd/internal/nmdc"
)

// hubConn owns the raw socket for one hub connection. It only ever reads
// bytes off the wire and writes bytes queued for it; every piece of shared
// state it touches is mutated back on the Run goroutine via dc.inbound.
type hubConn struct {
	addr string
	nc   net.Conn
	w    *bufio.Writer
}

func (hc *hubConn) send(s string) {
	if s == "" {
		return
	}
	hc.w.WriteString(s)
	hc.w.Flush()
}

// cmdConnect implements the "connect" control command: connect$<address>
// $<nick>$<password>$<encoding> (spec.md §6).
func (dc *Context) cmdConnect(fields []string) []control.Event {
	addr := field(fields, 0)
	nick := field(fields, 1)
	if addr == "" || nick == "" {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{"connect: missing address or nick"}}}
	}
	if _, exists := dc.Hubs[addr]; exists {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{"already connected: " + addr}}}
	}
	h := hub.New(hub.Options{
		Address:  addr,
		Nick:     nick,
		Password: field(fields, 2),
		Encoding: field(fields, 3),
		Passive:  dc.Cfg.Passive,
	})
	dc.Hubs[addr] = h
	dc.SlotMgr.NormalHubs++
	go dc.runHubConn(h)
	return []control.Event{{Name: control.EvtHubAdd, Fields: []string{addr, h.State.String()}}}
}

// cmdDisconnect implements "disconnect$<address>".
func (dc *Context) cmdDisconnect(fields []string) []control.Event {
	addr := field(fields, 0)
	h, ok := dc.Hubs[addr]
	if !ok {
		return nil
	}
	h.ExpectedDisconnect = true
	if hc, ok := dc.hubConns[addr]; ok {
		hc.nc.Close()
	}
	delete(dc.Hubs, addr)
	delete(dc.hubConns, addr)
	dc.SlotMgr.NormalHubs--
	return []control.Event{{Name: control.EvtHubDisconnected, Fields: []string{addr}}}
}

// runHubConn dials h's address, reads framed commands off the socket and
// dispatches each to the Run goroutine, and reconnects with backoff on an
// unexpected disconnect (spec.md §4.5).
func (dc *Context) runHubConn(h *hub.Hub) {
	nc, err := net.DialTimeout("tcp", h.Opt.Address, 10*time.Second)
	if err != nil {
		dc.inbound <- func(dc *Context) { dc.handleHubConnectFailed(h, err) }
		return
	}

	hc := &hubConn{addr: h.Opt.Address, nc: nc, w: bufio.NewWriter(nc)}
	dc.inbound <- func(dc *Context) { dc.hubConns[h.Opt.Address] = hc }

	fr := nmdc.NewFrameReader(bufio.NewReader(nc))
	for {
		line, err := fr.ReadCommand()
		if err != nil {
			dc.inbound <- func(dc *Context) { dc.handleHubDisconnect(h) }
			return
		}
		l := line
		dc.inbound <- func(dc *Context) { dc.handleHubLine(h, hc, l) }
	}
}

func (dc *Context) handleHubConnectFailed(h *hub.Hub, err error) {
	if dc.Control != nil {
		dc.Control.Broadcast(control.Event{Name: control.EvtConnectFailed, Fields: []string{h.Opt.Address, err.Error()}})
	}
	dc.scheduleReconnect(h)
}

func (dc *Context) handleHubDisconnect(h *hub.Hub) {
	delete(dc.hubConns, h.Opt.Address)
	if _, stillWanted := dc.Hubs[h.Opt.Address]; !stillWanted {
		return
	}
	h.State = hub.StateDisconnected
	h.LoggedIn = false
	if dc.Control != nil {
		dc.Control.Broadcast(control.Event{Name: control.EvtHubDisconnected, Fields: []string{h.Opt.Address}})
	}
	if h.ExpectedDisconnect {
		return
	}
	if h.RegisterKick(time.Now()) {
		return
	}
	dc.scheduleReconnect(h)
}

func (dc *Context) scheduleReconnect(h *hub.Hub) {
	if h.ReconnectAttempt >= 10 {
		return
	}
	delay := h.NextReconnect()
	time.AfterFunc(delay, func() {
		dc.inbound <- func(dc *Context) {
			if _, stillWanted := dc.Hubs[h.Opt.Address]; stillWanted {
				go dc.runHubConn(h)
			}
		}
	})
}

// handleHubLine translates one inbound wire line into calls on h's state
// machine, queues any reply onto h's outbox, and flushes it to hc.
func (dc *Context) handleHubLine(h *hub.Hub, hc *hubConn, line string) {
	switch {
	case strings.HasPrefix(line, "$Lock "):
		lock := strings.Fields(strings.TrimPrefix(line, "$Lock "))[0]
		for _, reply := range h.HandleLock(lock) {
			h.QueueWrite(reply)
		}
		h.QueueWrite(nmdc.FrameCommand("ValidateNick", h.Opt.Nick))
	case strings.HasPrefix(line, "$Hello "):
		nick := strings.TrimPrefix(line, "$Hello ")
		if h.HandleHello(nick) {
			h.QueueWrite(nmdc.FrameCommand("Version", "1,0091"))
			h.QueueWrite(nmdc.FrameCommand("GetNickList"))
			if dc.Control != nil {
				dc.Control.Broadcast(control.Event{Name: control.EvtHubAdd, Fields: []string{h.Opt.Address, h.State.String()}})
			}
		}
	case line == "$GetPass":
		h.QueueWrite(h.HandleGetPass())
	case line == "$BadPass":
		h.HandleBadPass()
		h.ExpectedDisconnect = true
		hc.nc.Close()
	case strings.HasPrefix(line, "$Quit "):
		nick := strings.TrimPrefix(line, "$Quit ")
		h.RemoveUser(nick)
		if dc.Control != nil {
			dc.Control.Broadcast(control.Event{Name: control.EvtUserLogout, Fields: []string{h.Opt.Address, nick}})
		}
	case strings.HasPrefix(line, "$MyINFO "):
		if parsed, ok := hub.ParseMyInfo(line); ok {
			h.ApplyMyInfo(parsed)
			if dc.Control != nil {
				dc.Control.Broadcast(control.Event{Name: control.EvtUserUpdate, Fields: []string{h.Opt.Address, parsed.Nick}})
			}
		}
	case strings.HasPrefix(line, "$ConnectToMe "):
		if target, addr, ok := hub.ParseConnectToMe(strings.TrimPrefix(line, "$ConnectToMe ")); ok && target == h.Opt.Nick {
			dc.dialPeer(h.Opt.Address, addr)
		}
	case strings.HasPrefix(line, "$RevConnectToMe "):
		if from, target, ok := hub.ParseRevConnectToMe(strings.TrimPrefix(line, "$RevConnectToMe ")); ok && target == h.Opt.Nick {
			myAddr := dc.Cfg.IPAddress + ":" + strconv.Itoa(dc.Cfg.Port)
			wire, err := h.RequestConnectTo(from, myAddr, dc.Cfg.Passive, h.UserIsPassive(from))
			if err == nil {
				h.QueueWrite(wire)
			} else if dc.Control != nil {
				dc.Control.Broadcast(control.Event{Name: control.EvtStatusMessage, Fields: []string{err.Error()}})
			}
		}
	case strings.HasPrefix(line, "$Search "):
		dc.handleInboundSearch(h, strings.TrimPrefix(line, "$Search "))
	case strings.HasPrefix(line, "$SR "):
		// $SR normally arrives over UDP (active) or is relayed by the hub
		// to a passive searcher's TCP stream; handle both the same way.
		dc.handleInboundSR(h, strings.TrimPrefix(line, "$SR "))
	case strings.HasPrefix(line, "$To: "):
		h.HandleChat(line, dc.Events)
	case strings.HasPrefix(line, "$UserCommand "):
		h.HandleUserCommand(strings.Split(strings.TrimPrefix(line, "$UserCommand "), "$"))
	case !strings.HasPrefix(line, "$"):
		h.HandleChat(line, dc.Events)
	}
	for _, out := range h.DrainOutbox() {
		hc.send(out)
	}
}

// flushHubOutboxes writes any command queued since the last flush (by a
// timer tick or a control command handled on the Run goroutine) to its
// hub's live connection.
func (dc *Context) flushHubOutboxes() {
	for addr, h := range dc.Hubs {
		out := h.DrainOutbox()
		if len(out) == 0 {
			continue
		}
		hc, ok := dc.hubConns[addr]
		if !ok {
			continue
		}
		for _, cmd := range out {
			hc.send(cmd)
		}
	}
}

// HubAddressForNick implements search.HubResolver: the first hub whose
// roster currently contains nick.
func (dc *Context) HubAddressForNick(nick string) (string, bool) {
	for addr, h := range dc.Hubs {
		if _, ok := h.Users[nick]; ok {
			return addr, true
		}
	}
	return "", false
}

// KnowsHub implements search.HubResolver.
func (dc *Context) KnowsHub(address string) bool {
	_, ok := dc.Hubs[address]
	return ok
}
