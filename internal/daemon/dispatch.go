package daemon

import (
	"strconv"
	"time"

	"github.com/shakespeer/sphubd/internal/control"
	"github.com/shakespeer/sphubd/internal/search"
)

// dispatchCommand executes one frontend command against dc and returns the
// events it produced, following the command surface in spec.md §6.
func dispatchCommand(dc *Context, cmd control.Command) []control.Event {
	switch cmd.Name {
	case control.CmdSetPort:
		return dc.cmdSetPort(cmd.Fields)
	case control.CmdSetPassive:
		return dc.cmdSetPassive(cmd.Fields)
	case control.CmdSetSlots:
		return dc.cmdSetSlots(cmd.Fields)
	case control.CmdSetAutoSearch:
		return dc.cmdSetAutoSearch(cmd.Fields)
	case control.CmdSetHashPrio:
		return dc.cmdSetHashPrio(cmd.Fields)
	case control.CmdGrantSlot:
		return dc.cmdGrantSlot(cmd.Fields)
	case control.CmdPauseHashing:
		if dc.Hasher != nil {
			dc.Hasher.Pause()
		}
		return nil
	case control.CmdResumeHashing:
		if dc.Hasher != nil {
			dc.Hasher.Resume()
		}
		return nil
	case control.CmdDownloadFile:
		return dc.cmdDownloadFile(cmd.Fields)
	case control.CmdDownloadFilelist:
		return dc.cmdDownloadFilelist(cmd.Fields)
	case control.CmdQueueRemoveTarget:
		return dc.cmdQueueRemoveTarget(cmd.Fields)
	case control.CmdSearch:
		return dc.cmdSearch(cmd.Fields)
	case control.CmdConnect:
		return dc.cmdConnect(cmd.Fields)
	case control.CmdDisconnect:
		return dc.cmdDisconnect(cmd.Fields)
	case control.CmdShutdown:
		return nil
	default:
		return nil
	}
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func (dc *Context) cmdSetPort(fields []string) []control.Event {
	if p, err := strconv.Atoi(field(fields, 0)); err == nil {
		dc.Cfg.Port = p
	}
	return []control.Event{{Name: control.EvtPort, Fields: []string{strconv.Itoa(dc.Cfg.Port)}}}
}

func (dc *Context) cmdSetPassive(fields []string) []control.Event {
	dc.Cfg.Passive = field(fields, 0) == "1" || field(fields, 0) == "true"
	return nil
}

func (dc *Context) cmdSetSlots(fields []string) []control.Event {
	if n, err := strconv.Atoi(field(fields, 0)); err == nil {
		dc.Cfg.TotalSlots = n
		dc.SlotMgr.TotalSlots = n
	}
	return nil
}

func (dc *Context) cmdSetAutoSearch(fields []string) []control.Event {
	dc.Cfg.AutoSearchEnabled = field(fields, 0) == "1" || field(fields, 0) == "true"
	return nil
}

func (dc *Context) cmdSetHashPrio(fields []string) []control.Event {
	if n, err := strconv.Atoi(field(fields, 0)); err == nil {
		dc.Cfg.HashPriority = n
		if dc.Hasher != nil {
			dc.Hasher.SetPriority(n)
		}
	}
	return nil
}

func (dc *Context) cmdGrantSlot(fields []string) []control.Event {
	nick := field(fields, 0)
	if nick != "" {
		dc.SlotMgr.GrantExtra(nick, true)
		_ = dc.Slots.Grant(nick, 1)
	}
	return nil
}

// cmdSearch issues an operator search against one hub: search$<hub
// address>$<pattern>[$<tth>] (spec.md §6).
func (dc *Context) cmdSearch(fields []string) []control.Event {
	addr := field(fields, 0)
	pattern := field(fields, 1)
	tth := field(fields, 2)
	h, ok := dc.Hubs[addr]
	if !ok {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{"unknown hub: " + addr}}}
	}
	myIPPort := dc.Cfg.IPAddress + ":" + strconv.Itoa(dc.Cfg.Port)
	_, wire := search.Dispatch(dc.SearchIDs, dc.Registry, myIPPort, h.Opt.Nick, h.Opt.Passive, false, pattern, tth, false, false, 0)
	h.QueueWrite(wire)
	return nil
}

func (dc *Context) cmdDownloadFile(fields []string) []control.Event {
	nick := field(fields, 0)
	sourceFilename := field(fields, 1)
	size, _ := strconv.ParseInt(field(fields, 2), 10, 64)
	targetFilename := field(fields, 3)
	tth := field(fields, 4)
	if _, err := dc.Queue.Add(nick, sourceFilename, size, targetFilename, tth); err != nil {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{err.Error()}}}
	}
	return nil
}

func (dc *Context) cmdDownloadFilelist(fields []string) []control.Event {
	nick := field(fields, 0)
	if err := dc.Queue.AddFilelist(nick, false); err != nil {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{err.Error()}}}
	}
	return nil
}

func (dc *Context) cmdQueueRemoveTarget(fields []string) []control.Event {
	target := field(fields, 0)
	movePartial := dc.Cfg.MovePartialDirectories
	if err := dc.Queue.RemoveTarget(target, movePartial); err != nil {
		return []control.Event{{Name: control.EvtStatusMessage, Fields: []string{err.Error()}}}
	}
	return []control.Event{{Name: control.EvtQueueRemoveTarget, Fields: []string{target}}}
}

// snapshotEvents renders the accept-time push named in spec.md §4.9: share
// stats per mountpoint, one hub-add per known hub, and cached filelist
// filenames (stale ones pruned first, per spec.md §6). Queue contents, hub
// rosters, chat/user-command history and current transfers are not
// included.
func (dc *Context) snapshotEvents() []control.Event {
	var events []control.Event
	for _, s := range dc.Share.Stats() {
		events = append(events, control.Event{
			Name: control.EvtShareStats,
			Fields: []string{
				s.Mountpoint,
				strconv.Itoa(s.NumFiles),
				strconv.Itoa(s.NumHashed),
				strconv.FormatInt(s.TotalBytes, 10),
				strconv.Itoa(s.NumDuplicates),
			},
		})
	}
	for addr, h := range dc.Hubs {
		events = append(events, control.Event{Name: control.EvtHubAdd, Fields: []string{addr, h.State.String()}})
	}
	if remaining, err := control.PruneStaleFilelists(dc.Cfg.WorkDir, time.Now()); err == nil {
		events = append(events, control.Event{Name: control.EvtStoredFilelists, Fields: remaining})
	}
	return events
}
