package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config is the daemon's runtime configuration, populated from CLI flags
// only; per SPEC_FULL.md, config-file parsing is out of scope.
type Config struct {
	WorkDir    string // -w
	LogLevel   Level  // -d
	Foreground bool   // -f
	UIPort     int    // -p

	// Mutable-at-runtime settings, changed via control-channel commands
	// (set-port, set-passive, set-slots, ...). Stored here so every
	// component reads a single shared snapshot.
	Port                  int
	IPAddress             string
	AllowHubIPOverride    bool
	Passive               bool
	TotalSlots            int
	SlotsPerHub           bool
	AutoSearchEnabled     bool
	HashPriority          int
	DownloadDirectory     string
	IncompleteDirectory   string
	FollowRedirects       bool
	TransferStatsInterval int // seconds
	RescanShareInterval   int // seconds
	MovePartialDirectories bool
}

// Default returns the daemon's built-in defaults prior to any flags.
func Default() *Config {
	return &Config{
		WorkDir:               ".",
		LogLevel:              LevelInfo,
		Port:                  412,
		TotalSlots:            3,
		AutoSearchEnabled:     true,
		HashPriority:          2,
		TransferStatsInterval: 5,
		RescanShareInterval:   3600,
		MovePartialDirectories: false,
	}
}

// ParseFlags fills a Config from the CLI flags documented in
// SPEC_FULL.md/spec.md §6: -w <workdir> -d <loglevel> -f -p <ui-tcp-port> -h.
//
// sphubd has no subcommands, so cobra.Command is used only the way
// rclone's own root command uses it underneath rclone's subcommand tree:
// as the flag-registration and usage-text surface backing a pflag.FlagSet,
// with Cobra's own "-h" handling left enabled rather than hand-rolled.
func ParseFlags(args []string) (*Config, error) {
	cfg := Default()
	root := &cobra.Command{
		Use:           "sphubd",
		Short:         "sphubd is a Direct Connect (NMDC) file-sharing daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(*cobra.Command, []string) error { return nil },
	}
	root.SetArgs(args)

	flags := root.Flags()
	flags.StringVarP(&cfg.WorkDir, "workdir", "w", cfg.WorkDir, "working directory")
	level := flags.IntP("debug", "d", int(cfg.LogLevel), "log level (0=error .. 3=debug)")
	flags.BoolVarP(&cfg.Foreground, "foreground", "f", false, "run in the foreground")
	flags.IntVarP(&cfg.UIPort, "ui-port", "p", 0, "TCP port for the control channel (0 = unix socket only)")
	root.InitDefaultHelpFlag()

	if err := root.Execute(); err != nil {
		return nil, errors.Wrap(err, "parsing flags")
	}
	if help, _ := flags.GetBool("help"); help {
		os.Exit(0)
	}
	if *level < 0 || *level > 3 {
		return nil, errors.New("log level out of range 0..3")
	}
	cfg.LogLevel = Level(*level)
	return cfg, nil
}

// PidFile returns the path to sphubd.pid within WorkDir.
func (c *Config) PidFile() string {
	return filepath.Join(c.WorkDir, "sphubd.pid")
}

// WritePidFile writes the current process pid, refusing if a live process
// already owns the file (spec §6 "stale-detected via kill(pid,0)").
func (c *Config) WritePidFile() error {
	path := c.PidFile()
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(string(data)); perr == nil && pid > 0 {
			if processAlive(pid) {
				return errors.Errorf("another sphubd instance is running (pid %d)", pid)
			}
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// RemovePidFile removes the pidfile on clean shutdown.
func (c *Config) RemovePidFile() {
	_ = os.Remove(c.PidFile())
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On unix FindProcess always succeeds; Signal(0) probes liveness
	// without delivering anything, matching spec's kill(pid,0) check.
	return proc.Signal(syscallSignal0()) == nil
}
