// Package daemon wires every component into the single "daemon context"
// named in spec.md §9 ("Global singletons... Model them as a single daemon
// context value owned by the event-loop driver; components receive a
// borrow of the context on each callback") and drives the cooperative,
// single-threaded reactor loop described in spec.md §5.
//
// Grounded on backend/cache's background-goroutine-plus-channel shape for
// its own eviction loop, generalized here into a single select-driven loop
// over a fixed set of one-shot, re-armed timers, and on golang.org/x/sync's
// errgroup usage pattern for supervising the accept-loop goroutines that
// feed the reactor (hub sockets, peer sockets, the control server, the UDP
// search listener) without ever mutating shared state off the loop
// goroutine.
package daemon

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/config"
	"github.com/shakespeer/sphubd/internal/control"
	"github.com/shakespeer/sphubd/internal/hasher"
	"github.com/shakespeer/sphubd/internal/hub"
	"github.com/shakespeer/sphubd/internal/match"
	"github.com/shakespeer/sphubd/internal/metrics"
	"github.com/shakespeer/sphubd/internal/queue"
	"github.com/shakespeer/sphubd/internal/search"
	"github.com/shakespeer/sphubd/internal/share"
	"github.com/shakespeer/sphubd/internal/slots"
	"github.com/shakespeer/sphubd/internal/tth"
)

// ServerVersion is reported to frontends on accept (control.EvtServerVersion).
const ServerVersion = "sphubd 1.0"

// Context bundles every shared component. All mutation on any field must
// happen from the Run goroutine; accept-loop goroutines only ever push work
// onto the inbound channel, never touch these fields directly.
type Context struct {
	Cfg *config.Config

	Events *bus.Topics

	Share  *share.Index
	TTH    *tth.Store
	Scan   *share.Scanner
	Queue  *queue.Queue
	Slots  *slots.Store
	Hasher *hasher.Client
	SlotMgr *hub.SlotManager

	Matcher   *match.Matcher
	Registry  *search.Registry
	SearchIDs *search.IDAllocator

	Hubs     map[string]*hub.Hub
	hubConns map[string]*hubConn

	Control      *control.Server
	Metrics      *metrics.Registry
	SearchListen *search.Listener

	filelistRequested *gocache.Cache

	initLevel control.InitLevel

	hashPipe *exec.Cmd

	inbound chan func(*Context)
}

// New opens every on-disk store under cfg.WorkDir and constructs a Context
// in control.InitStartup. It does not yet start any network listeners or
// the reactor loop; call Run for that.
func New(cfg *config.Config) (*Context, error) {
	events := bus.NewTopics()

	store, err := tth.Open(filepath.Join(cfg.WorkDir, "tth"))
	if err != nil {
		return nil, err
	}
	idx := share.NewIndex(store, events)
	scanner := share.NewScanner(idx, events)

	q, err := queue.Open(cfg.WorkDir, events)
	if err != nil {
		store.Close()
		return nil, err
	}

	slotStore, err := slots.Open(cfg.WorkDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	slotMgr := hub.NewSlotManager(cfg.TotalSlots, cfg.SlotsPerHub)

	dc := &Context{
		Cfg:       cfg,
		Events:    events,
		Share:     idx,
		TTH:       store,
		Scan:      scanner,
		Queue:     q,
		Slots:     slotStore,
		SlotMgr:   slotMgr,
		Registry:  search.NewRegistry(),
		SearchIDs: search.NewIDAllocator(),
		Hubs:      make(map[string]*hub.Hub),
		hubConns:  make(map[string]*hubConn),
		Metrics:   metrics.New(),
		filelistRequested: newFilelistRequestCache(),
		initLevel: control.InitStartup,
		inbound:   make(chan func(*Context), 256),
	}
	dc.Matcher = match.NewMatcher(q, dc, events)
	dc.Control = control.NewServer(dc, dc)
	dc.wireMetricsSubscriptions()
	dc.wireSearchSubscriptions()
	return dc, nil
}

// wireSearchSubscriptions feeds every matched search response into the
// auto-download matcher, and rebroadcasts it to attached frontends
// (spec.md §4.4, §4.9).
func (dc *Context) wireSearchSubscriptions() {
	dc.Events.SearchResponse.Subscribe(func(e bus.SearchResponse) {
		dc.Matcher.HandleSearchResponse(e.Nick, e.Filename, e.TTH, e.Size, e.RequestID == -1)
		if dc.Control != nil {
			dc.Control.Broadcast(control.Event{
				Name: control.EvtSearchResponse,
				Fields: []string{
					e.Nick, e.Filename, e.TTH,
					strconv.FormatInt(e.Size, 10),
					strconv.Itoa(e.FreeSlots), strconv.Itoa(e.TotalSlots),
					e.HubAddress,
				},
			})
		}
	})
}

// wireMetricsSubscriptions hooks the bus so hashing, download and upload
// completion increment their Prometheus counters, independent of the
// checkpoint-timer gauge refresh.
func (dc *Context) wireMetricsSubscriptions() {
	dc.Events.TTHAvailable.Subscribe(func(e bus.TTHAvailable) {
		if !e.Failed {
			dc.Metrics.HashedFiles.Inc()
		}
	})
	dc.Events.DownloadFinished.Subscribe(func(e bus.DownloadFinished) {
		dc.Metrics.BytesDownloaded.Add(float64(e.Bytes))
	})
	dc.Events.UploadFinished.Subscribe(func(e bus.UploadFinished) {
		dc.Metrics.BytesUploaded.Add(float64(e.Bytes))
	})
}

// RequestFilelist implements match.FilelistFetcher; queued here as a
// regular queue-add so it flows through the same persisted request path as
// an operator-initiated filelist download. Repeated auto-match triggers for
// the same nick within filelistRequestDebounce are suppressed so a flurry of
// search responses from one user doesn't queue the same filelist many times.
func (dc *Context) RequestFilelist(nick string, autoMatched bool) {
	if autoMatched {
		if _, seen := dc.filelistRequested.Get(nick); seen {
			return
		}
		dc.filelistRequested.SetDefault(nick, struct{}{})
	}
	_ = dc.Queue.AddFilelist(nick, autoMatched)
}

// StartHashPipe launches the sphashd helper and attaches the hasher client
// to its stdin/stdout pipe (spec.md §1: "a content hashing helper
// (sphashd)").
func (dc *Context) StartHashPipe(path string) error {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	dc.hashPipe = cmd
	dc.Hasher = hasher.NewClient(pipeTransport{stdin, stdout}, hashStoreAdapter{dc.TTH}, dc.Events)
	dc.Hasher.SetPriority(dc.Cfg.HashPriority)
	dc.initLevel = control.InitStoresOpen
	return nil
}

type pipeTransport struct {
	w interface{ Write([]byte) (int, error) }
	r interface{ Read([]byte) (int, error) }
}

func (t pipeTransport) Write(p []byte) (int, error) { return t.w.Write(p) }
func (t pipeTransport) Read(p []byte) (int, error)  { return t.r.Read(p) }

// hashStoreAdapter bridges hasher.Store's plain-uint64 inode parameter to
// tth.Store's share.Inode type; the two are bit-identical, so this is a
// direct conversion.
type hashStoreAdapter struct{ s *tth.Store }

func (a hashStoreAdapter) Add(tthStr string, inode uint64, mtime int64, leafData []byte) error {
	return a.s.Add(tthStr, share.Inode(inode), mtime, leafData)
}

// Snapshot implements control.SnapshotProvider.
func (dc *Context) Snapshot() control.Snapshot {
	return control.Snapshot{
		ServerVersion: ServerVersion,
		InitLevel:     dc.initLevel,
		Port:          dc.Cfg.Port,
		Events:        dc.snapshotEvents(),
	}
}

// Dispatch implements control.Dispatcher, executing one frontend command
// synchronously on the Run goroutine via the inbound channel.
func (dc *Context) Dispatch(cmd control.Command) []control.Event {
	result := make(chan []control.Event, 1)
	dc.inbound <- func(dc *Context) {
		result <- dispatchCommand(dc, cmd)
	}
	return <-result
}

// Run drives the reactor loop until ctx is cancelled: it multiplexes
// inbound command callbacks, the hasher poll, cooperative scan/match
// ticks, and every named timer from spec.md §5.
func (dc *Context) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := dc.startListeners(g, gctx); err != nil {
		return err
	}

	timers := newTimerSet()
	g.Go(func() error {
		defer dc.shutdown()
		for {
			select {
			case <-gctx.Done():
				return nil
			case fn := <-dc.inbound:
				fn(dc)
				dc.flushHubOutboxes()
			case <-timers.scanStep.C:
				busy := dc.Scan.Tick(dc.TTH)
				dc.setScanBusy(busy)
				timers.scanStep.Reset(0)
			case <-timers.hasherPoll.C:
				if dc.Hasher != nil {
					dc.Hasher.PollReplies()
				}
				timers.hasherPoll.Reset(100 * time.Millisecond)
			case <-timers.myInfoCoalesce.C:
				dc.broadcastDueMyInfo()
				dc.flushHubOutboxes()
				timers.myInfoCoalesce.Reset(time.Second)
			case <-timers.autoSearch.C:
				dc.runAutoSearch()
				dc.flushHubOutboxes()
				timers.autoSearch.Reset(123 * time.Second)
			case <-timers.rescan.C:
				dc.rescanShare()
				timers.rescan.Reset(dc.rescanInterval())
			case <-timers.transferStats.C:
				dc.broadcastTransferStats()
				timers.transferStats.Reset(dc.statsInterval())
			case <-timers.checkpoint.C:
				dc.refreshMetrics()
				timers.checkpoint.Reset(60 * time.Second)
			case <-timers.logPrune.C:
				dc.pruneFilelists()
				timers.logPrune.Reset(600 * time.Second)
			}
		}
	})
	return g.Wait()
}

func (dc *Context) rescanInterval() time.Duration {
	if dc.Cfg.RescanShareInterval <= 0 {
		return 3600 * time.Second
	}
	return time.Duration(dc.Cfg.RescanShareInterval) * time.Second
}

func (dc *Context) statsInterval() time.Duration {
	if dc.Cfg.TransferStatsInterval <= 0 {
		return time.Second
	}
	return time.Duration(dc.Cfg.TransferStatsInterval) * time.Second
}

func (dc *Context) shutdown() {
	if dc.Control != nil {
		dc.Control.Close()
	}
	if dc.SearchListen != nil {
		dc.SearchListen.Close()
	}
	dc.Queue.Close()
	dc.TTH.Close()
	if dc.hashPipe != nil && dc.hashPipe.Process != nil {
		dc.hashPipe.Process.Kill()
	}
}

type timerSet struct {
	scanStep       *time.Timer
	hasherPoll     *time.Timer
	myInfoCoalesce *time.Timer
	autoSearch     *time.Timer
	rescan         *time.Timer
	transferStats  *time.Timer
	checkpoint     *time.Timer
	logPrune       *time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{
		scanStep:       time.NewTimer(0),
		hasherPoll:     time.NewTimer(100 * time.Millisecond),
		myInfoCoalesce: time.NewTimer(time.Second),
		autoSearch:     time.NewTimer(123 * time.Second),
		rescan:         time.NewTimer(3600 * time.Second),
		transferStats:  time.NewTimer(time.Second),
		checkpoint:     time.NewTimer(60 * time.Second),
		logPrune:       time.NewTimer(600 * time.Second),
	}
}
