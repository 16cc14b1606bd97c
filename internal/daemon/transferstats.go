package daemon

// broadcastTransferStats is the tick point of the transfer-stats timer. It
// publishes nothing: per-peer byte counters live on the peer.Connection
// objects owned by the peer-connection goroutines, and Context keeps no
// registry of live peer connections to walk.
func (dc *Context) broadcastTransferStats() {
}
