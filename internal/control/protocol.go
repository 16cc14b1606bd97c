// Package control implements the frontend-facing control channel: a local
// UNIX-domain stream socket (optionally also TCP) speaking a line-based,
// $-delimited command/event protocol (spec.md §4.9, §6).
//
// Grounded on backend/cache's multi-listener accept loop and on
// accounting.go's snapshot-then-broadcast pattern for per-connection state
// push, adapted from HTTP stats polling to an on-accept command/event
// stream.
package control

import (
	"strings"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// InitLevel tracks daemon startup progress, pushed to newly attached
// frontends (spec.md §4.9).
type InitLevel int

const (
	// InitStartup is the level at process start.
	InitStartup InitLevel = 0
	// InitStoresOpen is reached once every store is open and the hashing
	// pipeline is connected; every command is safe to accept.
	InitStoresOpen InitLevel = 100
	// InitShareScanned is reached once the initially configured shared
	// paths have finished their first scan.
	InitShareScanned InitLevel = 200
)

// Command is a parsed frontend→daemon line (spec.md §6's command list).
type Command struct {
	Name   string
	Fields []string
}

// ParseCommand splits a $-delimited, |-terminated control line (already
// stripped of its trailing '|' by the frame reader) into a Command.
func ParseCommand(line string) Command {
	parts := strings.Split(line, "$")
	return Command{Name: parts[0], Fields: parts[1:]}
}

// Event is a daemon→frontend line.
type Event struct {
	Name   string
	Fields []string
}

// Format renders an Event as a $-delimited, |-terminated wire line.
func (e Event) Format() string {
	return nmdc.FrameCommand(e.Name, e.Fields...)
}

// Known command names (spec.md §6). Declared as constants so handler
// dispatch can switch on them without risking a typo'd string literal.
const (
	CmdConnect                  = "connect"
	CmdDisconnect               = "disconnect"
	CmdSearch                   = "search"
	CmdSearchAll                = "search-all"
	CmdPublicMessage            = "public-message"
	CmdPrivateMessage           = "private-message"
	CmdDownloadFile             = "download-file"
	CmdDownloadFilelist         = "download-filelist"
	CmdDownloadDirectory        = "download-directory"
	CmdQueueRemoveTarget        = "queue-remove-target"
	CmdQueueRemoveSource        = "queue-remove-source"
	CmdQueueRemoveNick          = "queue-remove-nick"
	CmdQueueRemoveFilelist      = "queue-remove-filelist"
	CmdQueueRemoveDirectory     = "queue-remove-directory"
	CmdCancelTransfer           = "cancel-transfer"
	CmdSetPort                  = "set-port"
	CmdSetIPAddress             = "set-ip-address"
	CmdSetAllowHubIPOverride    = "set-allow-hub-ip-override"
	CmdSetPassword              = "set-password"
	CmdUpdateUserInfo           = "update-user-info"
	CmdSetSlots                 = "set-slots"
	CmdSetPassive               = "set-passive"
	CmdForgetSearch             = "forget-search"
	CmdLogLevel                 = "log-level"
	CmdRawCommand               = "raw-command"
	CmdSetPriority              = "set-priority"
	CmdSetFollowRedirects       = "set-follow-redirects"
	CmdGrantSlot                = "grant-slot"
	CmdPauseHashing             = "pause-hashing"
	CmdResumeHashing            = "resume-hashing"
	CmdSetAutoSearch            = "set-auto-search"
	CmdSetHashPrio              = "set-hash-prio"
	CmdSetDownloadDirectory     = "set-download-directory"
	CmdSetIncompleteDirectory   = "set-incomplete-directory"
	CmdExpectSharedPaths        = "expect-shared-paths"
	CmdAddSharedPath            = "add-shared-path"
	CmdRemoveSharedPath         = "remove-shared-path"
	CmdTransferStatsInterval    = "transfer-stats-interval"
	CmdRescanShareInterval      = "rescan-share-interval"
	CmdShutdown                 = "shutdown"
)

// Known event names (spec.md §6).
const (
	EvtServerVersion      = "server-version"
	EvtInitCompletion     = "init-completion"
	EvtPort               = "port"
	EvtHubAdd             = "hub-add"
	EvtHubDisconnected    = "hub-disconnected"
	EvtUserLogin          = "user-login"
	EvtUserUpdate         = "user-update"
	EvtUserLogout         = "user-logout"
	EvtPublicMessage      = "public-message"
	EvtPrivateMessage     = "private-message"
	EvtUserCommand        = "user-command"
	EvtStatusMessage      = "status-message"
	EvtSearchResponse     = "search-response"
	EvtDownloadStarting   = "download-starting"
	EvtUploadStarting     = "upload-starting"
	EvtDownloadFinished   = "download-finished"
	EvtUploadFinished     = "upload-finished"
	EvtTransferAborted    = "transfer-aborted"
	EvtTransferStats      = "transfer-stats"
	EvtQueueAddTarget     = "queue-add-target"
	EvtQueueAddSource     = "queue-add-source"
	EvtQueueAddFilelist   = "queue-add-filelist"
	EvtQueueAddDirectory  = "queue-add-directory"
	EvtQueueRemoveTarget  = "queue-remove-target"
	EvtQueueRemoveSource  = "queue-remove-source"
	EvtSetPriority        = "set-priority"
	EvtShareStats         = "share-stats"
	EvtShareDuplicateFound = "share-duplicate-found"
	EvtFilelistFinished   = "filelist-finished"
	EvtStoredFilelists    = "stored-filelists"
	EvtHubRedirect        = "hub-redirect"
	EvtConnectFailed      = "connect-failed"
)
