// Package errs classifies daemon errors per the taxonomy in SPEC_FULL.md §7.
package errs

import "github.com/pkg/errors"

// Class is the error taxonomy used to decide how a failure propagates.
type Class int

const (
	// Transient covers connect/read/write failures that warrant a retry
	// or a scheduled reconnect.
	Transient Class = iota
	// Protocol covers a peer or hub sending something we can't parse or
	// that violates the wire contract.
	Protocol
	// Config covers an invalid port, path or other user-supplied setting.
	Config
	// Unavailable covers a resource (file, mountpoint, slot) that is
	// momentarily or permanently gone.
	Unavailable
	// Integrity covers a detected inconsistency (stale inode, TTH/inode
	// mismatch, missing leaf data) that is auto-repaired on next scan.
	Integrity
	// Fatal covers failures that must bring the whole daemon down.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Protocol:
		return "protocol"
	case Config:
		return "config"
	case Unavailable:
		return "unavailable"
	case Integrity:
		return "integrity"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// classified wraps an underlying error with a Class.
type classified struct {
	class Class
	err   error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Cause() error  { return c.err }
func (c *classified) Unwrap() error { return c.err }

// New wraps err with the given class. A nil err returns nil.
func New(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: err}
}

// Wrap annotates err with a message and a class.
func Wrap(class Class, err error, message string) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: errors.Wrap(err, message)}
}

// Wrapf annotates err with a formatted message and a class.
func Wrapf(class Class, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: errors.Wrapf(err, format, args...)}
}

// ClassOf returns the Class attached to err, or Transient if err was never
// classified (the common case for bare I/O errors bubbling up from net/os).
func ClassOf(err error) Class {
	var c *classified
	for e := err; e != nil; e = errors.Unwrap(e) {
		if cc, ok := e.(*classified); ok {
			c = cc
			break
		}
	}
	if c == nil {
		return Transient
	}
	return c.class
}

// Is reports whether err was classified as class (directly or through
// wrapping).
func Is(err error, class Class) bool {
	return err != nil && ClassOf(err) == class
}
