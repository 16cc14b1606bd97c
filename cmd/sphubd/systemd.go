package main

import (
	"context"

	sdnotify "github.com/iguanesolutions/go-systemd/v5/notify"

	"github.com/shakespeer/sphubd/internal/config"
)

// notifySystemdReady tells systemd (when run as a Type=notify unit) that
// startup finished; a no-op outside systemd since the library detects
// $NOTIFY_SOCKET itself.
func notifySystemdReady() {
	if err := sdnotify.Ready(context.Background()); err != nil {
		config.Debugf(nil, "systemd readiness notify skipped: %v", err)
	}
}
