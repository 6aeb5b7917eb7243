// Package trace is the kernel's logging/trace interface, loosely modelled
// on Linux's printk and grounded on
// _examples/original_source/kern/trace/printk.c and printk.h.
//
// Log level filtering happens here rather than at the call site: every
// Printk/Err/Warn/Info/Debug call is always issued, and __vprintk's Go equivalent drops it if its
// level is more verbose than defaults.KernelLogLevel allows.
package trace

import (
	"fmt"
	"io"
	"time"

	"github.com/monix-go/monix/kern/defaults"
)

// Level selects how verbose a message is; a higher Level is more verbose.
type Level int

const (
	LevelDefault  Level = iota // always printed
	LevelCritical              // panic or error
	LevelWarning               // not at risk of catastrophe
	LevelInfo                  // additional information
	LevelDebug                 // very verbose
)

var (
	sink    io.Writer
	boot    time.Time
	started bool
)

// SetOutput directs all subsequent trace output at w, replacing the
// console_setup/pl011_init bring-up in the C original. Call once, early in
// boot, once the console device is mapped and initialised.
func SetOutput(w io.Writer) {
	sink = w
	boot = time.Now()
	started = true

	io.WriteString(sink, "\n")
}

// timestamp formats the elapsed time since SetOutput was called, matching
// the "[   0.0000] " prefix the original hardcodes as a placeholder.
func timestamp() string {
	if !started {
		return "[   0.0000] "
	}
	return fmt.Sprintf("[%8.4f] ", time.Since(boot).Seconds())
}

// emit is the Go equivalent of __vprintk: it applies the log-level gate,
// then writes to the console sink.
func emit(level Level, cont bool, format string, args ...any) {
	if level > defaults.KernelLogLevel {
		return
	}
	if sink == nil {
		return
	}

	if cont {
		fmt.Fprintf(sink, format, args...)
		return
	}

	fmt.Fprintf(sink, timestamp()+format, args...)
}

// Printk prints at the default level: messages that must always reach the
// console regardless of the configured log level.
func Printk(format string, args ...any) {
	emit(LevelDefault, false, format, args...)
}

// Err prints a critical message: panics and fatal errors.
func Err(format string, args ...any) {
	emit(LevelCritical, false, format, args...)
}

// Warn prints a warning: unexpected but non-fatal.
func Warn(format string, args ...any) {
	emit(LevelWarning, false, format, args...)
}

// Info prints additional informational detail.
func Info(format string, args ...any) {
	emit(LevelInfo, false, format, args...)
}

// Debug prints verbose debug detail, gated by the kernel's log level.
func Debug(format string, args ...any) {
	emit(LevelDebug, false, format, args...)
}

// Cont continues the previous line without a timestamp prefix.
func Cont(format string, args ...any) {
	emit(LevelDefault, true, format, args...)
}
