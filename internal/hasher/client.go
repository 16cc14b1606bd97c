// Package hasher dispatches unhashed files to the external hashing helper
// and folds its replies back into the TTH store (spec.md §4.3). The helper
// process itself is out of scope (spec.md §1); this package speaks only the
// daemon's side of its wire protocol.
//
// Grounded on backend/hasher/hasher.go's push/receive/pause/resume shape,
// simplified to the single-process-helper contract spec.md describes and
// paced with golang.org/x/time/rate instead of the teacher's configmap
// tuning.
package hasher

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shakespeer/sphubd/internal/bus"
	"github.com/shakespeer/sphubd/internal/config"
	"github.com/shakespeer/sphubd/internal/errs"
)

// maxBatch is the largest number of unhashed files pushed in one go
// (spec.md §4.3: "push batches of up to 100 unhashed files").
const maxBatch = 100

// priorityDelay maps the configured hash priority (0..4) to the
// inter-chunk pacing delay (spec.md §4.3).
var priorityDelay = [5]time.Duration{
	0, 10 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond, 500 * time.Millisecond,
}

// Store is the subset of the TTH store the hasher client needs.
type Store interface {
	Add(tth string, inode uint64Inode, mtime int64, leafData []byte) error
}

// uint64Inode avoids importing the share package's Inode type directly so
// this package stays independently testable; daemon wiring does the cast.
type uint64Inode = uint64

// Transport is the daemon's side of the wire protocol spoken with the
// external hashing helper: line-based, one request/reply per line.
type Transport interface {
	io.Writer
	io.Reader
}

// pendingFile is a file pushed to the helper, awaiting a reply.
type pendingFile struct {
	path  string
	inode uint64Inode
	mtime int64
}

// Client drives the push/receive protocol and priority pacing.
type Client struct {
	transport Transport
	out       *bufio.Writer
	in        *bufio.Scanner
	store     Store
	events    *bus.Topics

	limiter *rate.Limiter
	paused  bool

	pending map[string]pendingFile // path -> metadata, awaiting reply
	inflight int
}

// NewClient wires a Client to an already-connected Transport (e.g. a pipe
// to the sphashd child process) and the TTH store it will update.
func NewClient(t Transport, store Store, events *bus.Topics) *Client {
	c := &Client{
		transport: t,
		out:       bufio.NewWriter(t),
		in:        bufio.NewScanner(t),
		store:     store,
		events:    events,
		pending:   make(map[string]pendingFile),
	}
	c.SetPriority(2)
	return c
}

// SetPriority reconfigures the inter-chunk pacing delay.
func (c *Client) SetPriority(priority int) {
	if priority < 0 {
		priority = 0
	}
	if priority > 4 {
		priority = 4
	}
	delay := priorityDelay[priority]
	if delay == 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
}

// Pause stops feeding new batches (spec.md §4.3 pause()).
func (c *Client) Pause() { c.paused = true }

// Resume restarts feeding (spec.md §4.3 resume()).
func (c *Client) Resume() { c.paused = false }

// PushBatch pushes up to maxBatch unhashed files if not paused and the
// pacer admits it. It returns the number of files actually pushed.
func (c *Client) PushBatch(files []pendingFile) (int, error) {
	if c.paused || len(files) == 0 {
		return 0, nil
	}
	if !c.limiter.Allow() {
		return 0, nil
	}
	if len(files) > maxBatch {
		files = files[:maxBatch]
	}
	for _, f := range files {
		c.pending[f.path] = f
		if _, err := fmt.Fprintf(c.out, "+%s\n", f.path); err != nil {
			return 0, errs.Wrap(errs.Transient, err, "writing to hashing helper")
		}
	}
	if err := c.out.Flush(); err != nil {
		return 0, errs.Wrap(errs.Transient, err, "flushing to hashing helper")
	}
	c.inflight += len(files)
	return len(files), nil
}

// PollReplies drains any complete "add-hash"/"fail-hash" lines currently
// available without blocking the event loop, updating the TTH store and
// publishing a "TTH available" notification per reply (spec.md §4.3).
func (c *Client) PollReplies() int {
	n := 0
	for c.in.Scan() {
		line := c.in.Text()
		if c.handleReply(line) {
			n++
		}
		if !moreAvailable(c.transport) {
			break
		}
	}
	return n
}

func (c *Client) handleReply(line string) bool {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) < 2 {
		config.Errorf(nil, "malformed hasher reply: %q", line)
		return false
	}
	kind, path := parts[0], parts[1]
	pf, ok := c.pending[path]
	if !ok {
		config.Errorf(path, "hasher reply for unknown path")
		return false
	}
	delete(c.pending, path)
	c.inflight--

	switch kind {
	case "add-hash":
		if len(parts) < 4 {
			config.Errorf(path, "malformed add-hash reply")
			return false
		}
		tthStr := parts[2]
		mibs, _ := strconv.ParseFloat(parts[3], 64)
		if err := c.store.Add(tthStr, pf.inode, pf.mtime, nil); err != nil {
			config.Errorf(path, "storing tth: %v", err)
		}
		c.events.TTHAvailable.Publish(bus.TTHAvailable{
			LocalPath:      path,
			TTH:            tthStr,
			ThroughputMiBs: mibs,
		})
	case "fail-hash":
		c.events.TTHAvailable.Publish(bus.TTHAvailable{LocalPath: path, Failed: true})
	default:
		config.Errorf(path, "unknown hasher reply kind %q", kind)
		return false
	}
	return true
}

// moreAvailable is a hook point for transports that can report buffered,
// already-received bytes; the default (pipes) relies on bufio.Scanner's own
// buffering and always returns false after one line to avoid blocking.
func moreAvailable(_ Transport) bool { return false }
