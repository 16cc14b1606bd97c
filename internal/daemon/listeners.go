package daemon

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/shakespeer/sphubd/internal/search"
)

// controlSocketPath is the UNIX-domain control socket, alongside the
// pidfile in the working directory.
func (dc *Context) controlSocketPath() string {
	return filepath.Join(dc.Cfg.WorkDir, "sphubd.ctl")
}

// startListeners binds and serves every network-facing component named in
// spec.md §4.9 (control channel), §4.6 (peer listener) and §4.7 (UDP search
// listener), registering one accept-loop goroutine per listener on g. Every
// goroutine only ever pushes closures onto dc.inbound; none touches Context
// fields directly (see the Context doc comment).
func (dc *Context) startListeners(g *errgroup.Group, gctx context.Context) error {
	if err := dc.Control.ListenUnix(dc.controlSocketPath()); err != nil {
		return err
	}
	if dc.Cfg.UIPort != 0 {
		if err := dc.Control.ListenTCP(dc.Cfg.UIPort); err != nil {
			return err
		}
	}
	g.Go(func() error {
		dc.Control.Serve(dc.Control.UnixListener(), nil)
		return nil
	})
	if dc.Cfg.UIPort != 0 {
		g.Go(func() error {
			dc.Control.Serve(dc.Control.TCPListener(), nil)
			return nil
		})
	}
	go func() {
		<-gctx.Done()
		dc.Control.Close()
	}()

	if dc.Cfg.Passive {
		return nil
	}

	peerListener, err := dc.ListenPeers()
	if err != nil {
		return err
	}
	g.Go(func() error {
		dc.ServePeers(peerListener)
		return nil
	})

	listener, err := search.Listen(dc.Cfg.Port, dc.Registry, dc, dc.Events)
	if err != nil {
		peerListener.Close()
		return err
	}
	dc.SearchListen = listener
	g.Go(func() error {
		buf := make([]byte, 64*1024)
		for {
			if err := listener.ServeOne(buf); err != nil {
				return nil
			}
		}
	})

	go func() {
		<-gctx.Done()
		peerListener.Close()
		listener.Close()
	}()

	return nil
}
