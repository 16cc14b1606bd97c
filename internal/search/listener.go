package search

import (
	"net"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/config"
)

// HubResolver identifies which connected hub a response came from, first by
// address and falling back to "the hub this nick is known on" (spec.md
// §4.7). Responses that resolve to neither are dropped.
type HubResolver interface {
	HubAddressForNick(nick string) (address string, ok bool)
	KnowsHub(address string) bool
}

// Listener is the UDP $SR listener, bound to the same port as the TCP peer
// listener (absent entirely in passive mode, per spec.md §4.7).
type Listener struct {
	conn     *net.UDPConn
	registry *Registry
	resolver HubResolver
	events   *bus.Topics
}

// Listen opens the UDP socket. Passive-mode daemons never call this.
func Listen(port int, registry *Registry, resolver HubResolver, events *bus.Topics) (*Listener, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{conn: conn, registry: registry, resolver: resolver, events: events}, nil
}

// Close releases the socket.
func (l *Listener) Close() error { return l.conn.Close() }

// ServeOne reads and processes a single datagram; intended to be called in
// a loop from the daemon's supervised goroutine set.
func (l *Listener) ServeOne(buf []byte) error {
	n, _, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return err
	}
	l.handleDatagram(buf[:n])
	return nil
}

func (l *Listener) handleDatagram(raw []byte) {
	s := string(raw)
	const prefix = "$SR "
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return
	}
	resp, ok := ParseSR(s[len(prefix):])
	if !ok {
		return
	}
	l.dispatch(resp)
}

func (l *Listener) dispatch(resp Response) {
	if resp.HubAddress != "" {
		if !l.resolver.KnowsHub(resp.HubAddress) {
			return
		}
	} else {
		addr, ok := l.resolver.HubAddressForNick(resp.Nick)
		if !ok {
			return
		}
		resp.HubAddress = addr
	}

	id, matched := l.registry.Match(resp.Filename, resp.TTH, resp.Size)
	if !matched {
		config.Debugf(nil, "unmatched search response from %s for %s", resp.Nick, resp.Filename)
		return
	}

	l.events.SearchResponse.Publish(bus.SearchResponse{
		RequestID:   id,
		Nick:        resp.Nick,
		Filename:    resp.Filename,
		IsDir:       resp.IsDirectory,
		Size:        resp.Size,
		FreeSlots:   resp.FreeSlots,
		TotalSlots:  resp.TotalSlots,
		TTH:         resp.TTH,
		HubAddress:  resp.HubAddress,
	})
}
