package bus

import "time"

// Event kinds used across the daemon. Each has one Topic[T] instance held
// by the daemon context (see internal/daemon); components only ever see
// the Topic, never a bare Kind string.
const (
	KindTTHAvailable      Kind = "tth-available"
	KindDuplicateFound    Kind = "share-duplicate-found"
	KindShareStats        Kind = "share-stats"
	KindWillRemoveShare   Kind = "will-remove-share"
	KindDownloadFinished  Kind = "download-finished"
	KindFilelistFinished  Kind = "filelist-finished"
	KindUploadFinished    Kind = "upload-finished"
	KindTransferAborted   Kind = "transfer-aborted"
	KindTransferStats     Kind = "transfer-stats"
	KindQueueAddTarget    Kind = "queue-add-target"
	KindQueueAddSource    Kind = "queue-add-source"
	KindQueueRemoveTarget Kind = "queue-remove-target"
	KindSearchResponse    Kind = "search-response"
	KindStatusMessage     Kind = "status-message"
	KindHubUserLogin      Kind = "user-login"
	KindHubUserLogout     Kind = "user-logout"
	KindHubUserUpdate     Kind = "user-update"
	KindHubDisconnected   Kind = "hub-disconnected"
	KindHubRedirect       Kind = "hub-redirect"
	KindPublicMessage     Kind = "public-message"
	KindPrivateMessage    Kind = "private-message"
)

// TTHAvailable is published by the hasher pipeline when a file finishes (or
// fails) hashing.
type TTHAvailable struct {
	LocalPath   string
	TTH         string // empty on failure
	ThroughputMiBs float64
	Failed      bool
}

// DuplicateFound is published by the share index scanner.
type DuplicateFound struct {
	Mountpoint  string
	PartialPath string
	TTH         string
}

// ShareStats is published after a scan pass and on request.
type ShareStats struct {
	Mountpoint   string
	NumFiles     int
	NumHashed    int
	TotalBytes   int64
	NumDuplicates int
}

// DownloadFinished is published when a peer connection completes a
// non-filelist download.
type DownloadFinished struct {
	Nick           string
	TargetFilename string
	TTH            string
	Bytes          int64
}

// UploadFinished is published when a peer connection completes serving a
// requested byte range to another nick.
type UploadFinished struct {
	Nick        string
	VirtualPath string
	Bytes       int64
}

// FilelistFinished is published when a peer connection completes a
// filelist download.
type FilelistFinished struct {
	Nick         string
	Path         string
	AutoMatched  bool
}

// TransferAborted is published when a transfer is torn down abnormally.
type TransferAborted struct {
	Nick   string
	Reason string
}

// TransferStats is published periodically per the configured interval.
type TransferStats struct {
	Nick          string
	Direction     string // "upload" | "download"
	BytesDone     int64
	BytesTotal    int64
	ThroughputBps float64
	At            time.Time
}

// StatusMessage is a user-visible, hub-or-global informational message.
type StatusMessage struct {
	HubAddress string // empty for global messages
	Message    string
}

// QueueAddTarget is published whenever a new queue target is created.
type QueueAddTarget struct {
	TargetFilename string
	TTH            string
	Size           int64
	Priority       int
}

// QueueAddSource is published whenever a source is attached to a target.
type QueueAddSource struct {
	TargetFilename string
	Nick           string
	SourceFilename string
}

// SearchResponse is published by the search dispatcher once a response has
// been matched to a request id.
type SearchResponse struct {
	RequestID int
	Nick      string
	Filename  string
	IsDir     bool
	Size      int64
	FreeSlots int
	TotalSlots int
	TTH       string
	HubAddress string
}
