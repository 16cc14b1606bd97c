// Package config holds daemon-wide settings and the logging front door.
//
// Logging follows the teacher's Debugf(subject, format, args...) idiom
// (see backend/hasher.go's fs.Debugf/fs.Infof/fs.Errorf calls) but is built
// on logrus rather than a bespoke formatter.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

// Level mirrors the daemon's -d <loglevel> flag.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var log = logrus.New()

// SetupLogging points the daemon logger at out (or a color-capable stdout
// wrapper in foreground mode) at the given level.
func SetupLogging(level Level, foreground bool, out io.Writer) {
	if out == nil {
		if foreground {
			out = colorable.NewColorableStdout()
		} else {
			out = os.Stdout
		}
	}
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: !foreground})
	switch level {
	case LevelError:
		log.SetLevel(logrus.ErrorLevel)
	case LevelWarn:
		log.SetLevel(logrus.WarnLevel)
	case LevelInfo:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}
}

func subject(o interface{}) string {
	if o == nil {
		return "-"
	}
	if s, ok := o.(string); ok {
		return s
	}
	if s, ok := o.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", o)
}

// Debugf logs a debug-level message about subject o, matching the teacher's
// fs.Debugf(object, format, args...) call shape.
func Debugf(o interface{}, format string, args ...interface{}) {
	log.WithField("subject", subject(o)).Debugf(format, args...)
}

// Infof logs an info-level message about subject o.
func Infof(o interface{}, format string, args ...interface{}) {
	log.WithField("subject", subject(o)).Infof(format, args...)
}

// Errorf logs an error-level message about subject o.
func Errorf(o interface{}, format string, args ...interface{}) {
	log.WithField("subject", subject(o)).Errorf(format, args...)
}

// Fatalf logs and terminates the process; reserved for the "cannot open
// working directory"/"another instance running" class of fatal errors.
func Fatalf(o interface{}, format string, args ...interface{}) {
	log.WithField("subject", subject(o)).Fatalf(format, args...)
}
