package daemon

import (
	"net"
	"strings"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/hub"
	"github.com/shakespeer/sphubd/internal/nmdc"
	"github.com/shakespeer/sphubd/internal/search"
	"github.com/shakespeer/sphubd/internal/share"
)

// searchMatchLimit bounds how many $SR lines one inbound $Search gets
// (spec.md §8 Scenario 1: "up to five results").
const searchMatchLimit = 5

// handleInboundSearch answers one inbound $Search against the share index,
// replying with $SR lines delivered directly by UDP to an active searcher
// or queued to the hub for a passive one (spec.md §4.7, §8 Scenario 1).
func (dc *Context) handleInboundSearch(h *hub.Hub, body string) {
	from, req, ok := hub.ParseSearch(body)
	if !ok {
		return
	}
	query := share.MatchQuery{
		SizeRestricted: req.SizeRestricted,
		AtLeast:        req.IsAtLeast,
		Size:           req.Size,
	}
	if req.Type == nmdc.SearchTypeTTH {
		query.TTH = req.Pattern
	} else {
		query.Words = strings.Fields(req.Pattern)
	}

	matches := dc.Share.Search(query)
	if len(matches) > searchMatchLimit {
		matches = matches[:searchMatchLimit]
	}
	if len(matches) == 0 {
		return
	}

	total := dc.SlotMgr.Total()
	freeSlots := total - dc.SlotMgr.Used()
	if freeSlots < 0 {
		freeSlots = 0
	}

	for _, m := range matches {
		params := search.SRParams{
			Nick:       h.Opt.Nick,
			Filename:   m.VirtualPath,
			TTH:        m.TTH,
			Size:       m.Size,
			FreeSlots:  freeSlots,
			TotalSlots: total,
			HubName:    h.Opt.Address,
			HubAddress: h.Opt.Address,
		}
		wire := search.FormatSR(params)
		dc.deliverSR(h, from, wire)
	}
}

// deliverSR sends one formatted $SR line to the searcher named by from:
// "ip:port" goes out over UDP directly, "Hub:nick" goes back through the
// hub as a normal outbound command (spec.md §4.7).
func (dc *Context) deliverSR(h *hub.Hub, from, wire string) {
	if strings.HasPrefix(from, "Hub:") {
		h.QueueWrite(wire)
		return
	}
	addr, err := net.ResolveUDPAddr("udp", from)
	if err != nil {
		return
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(wire))
}

// handleInboundSR processes a $SR that arrived over a hub's TCP stream
// (the passive-searcher relay case); the UDP path is handled directly by
// search.Listener for active searchers.
func (dc *Context) handleInboundSR(h *hub.Hub, body string) {
	resp, ok := search.ParseSR(body)
	if !ok {
		return
	}
	id, matched := dc.Registry.Match(resp.Filename, resp.TTH, resp.Size)
	if !matched {
		return
	}
	dc.Events.SearchResponse.Publish(bus.SearchResponse{
		RequestID:  id,
		Nick:       resp.Nick,
		Filename:   resp.Filename,
		IsDir:      resp.IsDirectory,
		Size:       resp.Size,
		FreeSlots:  resp.FreeSlots,
		TotalSlots: resp.TotalSlots,
		TTH:        resp.TTH,
		HubAddress: h.Opt.Address,
	})
}
