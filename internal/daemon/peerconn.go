package daemon

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/config"
	"github.com/shakespeer/sphubd/internal/control"
	"github.com/shakespeer/sphubd/internal/hub"
	"github.com/shakespeer/sphubd/internal/nmdc"
	"github.com/shakespeer/sphubd/internal/peer"
	"github.com/shakespeer/sphubd/internal/share"
)

// peerConn owns the raw socket for one peer-to-peer connection; like
// hubConn it only moves bytes, leaving all state mutation to the Run
// goroutine via dc.inbound.
type peerConn struct {
	nc   net.Conn
	w    *bufio.Writer
	conn *peer.Connection
}

func (pc *peerConn) send(s string) {
	pc.w.WriteString(s)
	pc.w.Flush()
}

// ListenPeers binds the TCP peer port named by the set-port value (Cfg.Port)
// (spec.md §4.6); skipped entirely by Run when the daemon is passive.
func (dc *Context) ListenPeers() (net.Listener, error) {
	return net.Listen("tcp", ":"+strconv.Itoa(dc.Cfg.Port))
}

// ServePeers accepts inbound peer connections until l is closed (on
// accept, we are the non-initiating side and speak first per spec.md
// §4.6).
func (dc *Context) ServePeers(l net.Listener) {
	for {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		go dc.runPeerConn(nc, false)
	}
}

// dialPeer opens an outbound connection to a peer that asked us to connect
// (an inbound $ConnectToMe naming our nick, spec.md §9). We dialed, so we
// are the initiating side and wait for the peer to speak first.
func (dc *Context) dialPeer(hubAddr, addr string) {
	go func() {
		nc, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			config.Debugf(nil, "dial peer %s: %v", addr, err)
			return
		}
		dc.runPeerConn(nc, true)
	}()
}

func (dc *Context) runPeerConn(nc net.Conn, isInitiator bool) {
	pc := &peerConn{nc: nc, w: bufio.NewWriter(nc)}
	now := time.Now()
	pc.conn = peer.New("", isInitiator, now)

	if !isInitiator {
		dc.inbound <- func(dc *Context) {
			nick := dc.anyHubNick()
			lock := peer.GenerateLock(nick)
			pc.conn.SetLocalLock(lock)
			pc.send(nmdc.FrameCommand("MyNick", nick))
			pc.send(nmdc.FrameCommand("Lock", lock+" "+nmdc.PkSuffix()))
		}
	}

	fr := nmdc.NewFrameReader(bufio.NewReader(nc))
	for {
		line, err := fr.ReadCommand()
		if err != nil {
			dc.inbound <- func(dc *Context) {
				if pc.conn.State == peer.StateBusy {
					dc.Events.TransferAborted.Publish(bus.TransferAborted{Nick: pc.conn.Nick, Reason: "connection closed"})
				}
			}
			return
		}
		l := line
		dc.inbound <- func(dc *Context) { dc.handlePeerLine(pc, l) }
	}
}

// anyHubNick returns the nick we log in under on any one connected hub, the
// best we can do for a peer connection before we know which hub it belongs
// to (spec.md's peer connections are per-nick, not per-hub-and-nick).
func (dc *Context) anyHubNick() string {
	for _, h := range dc.Hubs {
		if h.Opt.Nick != "" {
			return h.Opt.Nick
		}
	}
	return ""
}

func (dc *Context) handlePeerLine(pc *peerConn, line string) {
	c := pc.conn
	switch {
	case strings.HasPrefix(line, "$MyNick "):
		c.HandleMyNick(strings.TrimPrefix(line, "$MyNick "))
	case strings.HasPrefix(line, "$Lock "):
		lock := strings.TrimPrefix(line, "$Lock ")
		for _, reply := range c.HandleLock(dc.anyHubNick(), lock, peer.Capabilities{}) {
			pc.send(reply)
		}
	case strings.HasPrefix(line, "$Direction "):
		fields := strings.Fields(strings.TrimPrefix(line, "$Direction "))
		if len(fields) == 2 {
			if ch, err := strconv.Atoi(fields[1]); err == nil {
				c.HandleDirection(fields[0], ch)
			}
		}
	case strings.HasPrefix(line, "$Key "):
		if c.HandleKey(strings.TrimPrefix(line, "$Key ")) && c.Direction == peer.DirectionDownload {
			dc.startDownload(pc)
		}
	case strings.HasPrefix(line, "$ADCGET "):
		dc.serveADCGet(pc, strings.TrimPrefix(line, "$ADCGET "))
	case strings.HasPrefix(line, "$Get "):
		dc.serveLegacyGet(pc, strings.TrimPrefix(line, "$Get "))
	case strings.HasPrefix(line, "$MaxedOut"):
		dc.Events.TransferAborted.Publish(bus.TransferAborted{Nick: c.Nick, Reason: "peer has no free slots"})
	}
}

// startDownload issues the next queued request for c.Nick, if any, once the
// connection is Ready in the download direction (spec.md §4.4
// get_next_source_for_nick, §4.6 request preference order). Receiving the
// requested bytes back is not yet implemented: doing so correctly requires
// switching the connection's read loop out of line-framed mode for the
// binary payload, which is out of scope for this pass (see DESIGN.md).
func (dc *Context) startDownload(pc *peerConn) {
	c := pc.conn
	src, ok := dc.Queue.GetNextSourceForNick(c.Nick)
	if !ok {
		return
	}
	if src.IsFilelist {
		pc.send(c.RequestFor(c.FilelistRequestPath(), "", 0, 0))
		return
	}
	pc.send(c.RequestFor(src.SourceFilename, src.TTH, 0, src.Size))
}

// serveADCGet answers "$ADCGET file <TTH/<tth>|virtualPath> <offset>
// <length>" by streaming the requested byte range (spec.md §4.6).
func (dc *Context) serveADCGet(pc *peerConn, body string) {
	fields := strings.Fields(body)
	if len(fields) != 4 || fields[0] != "file" {
		return
	}
	virtualPath := fields[1]
	if strings.HasPrefix(virtualPath, "TTH/") {
		dc.serveUploadByTTH(pc, strings.TrimPrefix(virtualPath, "TTH/"), fields[2], fields[3])
		return
	}
	dc.serveUpload(pc, virtualPath, fields[2], fields[3])
}

func (dc *Context) serveLegacyGet(pc *peerConn, body string) {
	sp := strings.SplitN(body, "$", 2)
	if len(sp) != 2 {
		return
	}
	dc.serveUpload(pc, sp[0], strings.TrimSuffix(sp[1], "+1"), "0")
}

func (dc *Context) serveUploadByTTH(pc *peerConn, tth, offsetStr, lengthStr string) {
	matches := dc.Share.Search(share.MatchQuery{TTH: tth})
	if len(matches) == 0 {
		pc.send(nmdc.FrameCommand("Error", "File Not Available"))
		return
	}
	dc.serveUpload(pc, matches[0].VirtualPath, offsetStr, lengthStr)
}

func (dc *Context) serveUpload(pc *peerConn, virtualPath, offsetStr, lengthStr string) {
	c := pc.conn
	offset, _ := strconv.ParseInt(offsetStr, 10, 64)
	length, _ := strconv.ParseInt(lengthStr, 10, 64)

	local, actualLength, err := peer.PrepareUpload(dc.Share, dc.anyHubNick(), c.Nick, virtualPath, offset, length)
	if err != nil {
		pc.send(nmdc.FrameCommand("Error", err.Error()))
		return
	}

	slot := dc.SlotMgr.Request(c.Nick, strings.HasSuffix(virtualPath, ".xml.bz2") || strings.HasSuffix(virtualPath, ".DcLst"), actualLength)
	if slot == hub.SlotNone {
		pc.send(nmdc.FrameCommand("MaxedOut"))
		return
	}
	dc.SlotMgr.Acquire(slot)
	defer dc.SlotMgr.Release(slot)

	c.BeginTransfer(local, offset, actualLength, offset+actualLength, time.Now())
	if dc.Control != nil {
		dc.Control.Broadcast(control.Event{Name: control.EvtUploadStarting, Fields: []string{c.Nick, virtualPath}})
	}
	n, err := dc.streamFile(pc, local, offset, actualLength)
	c.FinishTransfer()
	if err == nil {
		dc.Events.UploadFinished.Publish(bus.UploadFinished{Nick: c.Nick, VirtualPath: virtualPath, Bytes: n})
	}
}

// streamFile writes the ADCSND header and then length bytes of localPath
// starting at offset directly to the socket.
func (dc *Context) streamFile(pc *peerConn, localPath string, offset, length int64) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		pc.send(nmdc.FrameCommand("Error", "File Not Available"))
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		pc.send(nmdc.FrameCommand("Error", "File Not Available"))
		return 0, err
	}

	pc.send(nmdc.FrameCommandSpaced("ADCSND", "file", strconv.FormatInt(offset, 10), strconv.FormatInt(length, 10)))
	pc.w.Flush()

	n, err := io.CopyN(pc.nc, f, length)
	pc.conn.RecordBytes(n, time.Now())
	if err != nil && err != io.EOF {
		dc.Events.TransferAborted.Publish(bus.TransferAborted{Nick: pc.conn.Nick, Reason: err.Error()})
		return n, err
	}
	return n, nil
}
