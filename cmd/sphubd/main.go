// Command sphubd is the Direct Connect daemon: it owns all network state
// (hubs, peer connections, share index, queue) and exposes a local control
// channel for frontends (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shakespeer/sphubd/internal/config"
	"github.com/shakespeer/sphubd/internal/daemon"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "sphubd:", err)
		os.Exit(2)
	}

	config.SetupLogging(cfg.LogLevel, cfg.Foreground, os.Stderr)

	if err := cfg.WritePidFile(); err != nil {
		config.Fatalf(nil, "%v", err)
	}
	defer cfg.RemovePidFile()

	dc, err := daemon.New(cfg)
	if err != nil {
		config.Fatalf(nil, "opening daemon state: %v", err)
	}

	notifySystemdReady()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	signal.Ignore(syscall.SIGPIPE)

	if err := dc.Run(ctx); err != nil {
		config.Errorf(nil, "daemon exited with error: %v", err)
		os.Exit(1)
	}
}
