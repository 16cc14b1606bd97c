//go:build windows

package config

import "os"

// Windows has no kill(pid,0) equivalent via os.Signal; os.Interrupt is the
// closest portable probe os.Process.Signal accepts.
func syscallSignal0() os.Signal {
	return os.Interrupt
}
