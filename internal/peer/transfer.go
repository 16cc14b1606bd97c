package peer

import (
	"os"
	"path/filepath"
	"time"
)

// ResumeOffset implements spec.md §4.6's resume policy: if a partial file
// already exists in the incomplete directory, the download resumes from its
// current size; if that size already meets or exceeds the target size, the
// file is complete (finished=true) rather than resumable. Otherwise offset
// is zero and the incomplete path's parent directories are created.
func ResumeOffset(incompletePath string, targetSize int64) (offset int64, finished bool, err error) {
	info, statErr := os.Stat(incompletePath)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return 0, false, statErr
		}
		if err := os.MkdirAll(filepath.Dir(incompletePath), 0o755); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	if info.Size() >= targetSize {
		return info.Size(), true, nil
	}
	return info.Size(), false, nil
}

// BeginTransfer opens the Busy state for a just-accepted request of length
// bytes starting at offset; length==0 means "rest of file" and is resolved
// against fileSize.
func (c *Connection) BeginTransfer(localFile string, offset, length, fileSize int64, now time.Time) {
	if length == 0 {
		length = fileSize - offset
	}
	c.LocalFile = localFile
	c.Offset = offset
	c.FileSize = fileSize
	c.BytesToXfer = length
	c.BytesDone = 0
	c.TransferStart = now
	c.LastTransferActivity = now
	c.State = StateBusy
}

// RecordBytes updates transfer progress after a chunk is read or written.
func (c *Connection) RecordBytes(n int64, now time.Time) {
	c.BytesDone += n
	c.LastTransferActivity = now
	c.LastActivity = now
}

// Done reports whether the current transfer has moved its full byte count.
func (c *Connection) Done() bool { return c.BytesDone >= c.BytesToXfer }

// Throughput returns bytes/sec for the transfer so far.
func (c *Connection) Throughput(now time.Time) float64 {
	elapsed := now.Sub(c.TransferStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.BytesDone) / elapsed
}

// Stalled reports whether the Busy transfer has been idle longer than
// TransferIdleTimeout.
func (c *Connection) Stalled(now time.Time) bool {
	return c.State == StateBusy && now.Sub(c.LastTransferActivity) > TransferIdleTimeout
}

// HandshakeExpired reports whether the connection failed to reach Ready
// within HandshakeTimeout of creation.
func (c *Connection) HandshakeExpired(now time.Time) bool {
	return c.State != StateReady && c.State != StateBusy && now.Sub(c.CreatedAt) > HandshakeTimeout
}

// ReadyExpired reports whether a Ready connection has sat idle past
// ReadyIdleTimeout without issuing a new request.
func (c *Connection) ReadyExpired(now time.Time) bool {
	return c.State == StateReady && now.Sub(c.LastActivity) > ReadyIdleTimeout
}

// FinishTransfer clears transfer state and returns to Ready for request
// pipelining on the same connection (spec.md §4.6: "another request is
// issued on the same connection if one exists for this nick").
func (c *Connection) FinishTransfer() {
	c.LocalFile = ""
	c.CurrentTarget = ""
	c.Offset = 0
	c.FileSize = 0
	c.BytesToXfer = 0
	c.BytesDone = 0
	c.State = StateReady
}
