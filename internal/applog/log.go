// Package applog centralizes backy's diagnostic logging. It mirrors the
// teacher's own approach (plain log.Logger writing to stderr, no structured
// logging library) rather than introducing one of the examples' heavier
// logging stacks for a CLI tool that doesn't need it.
package applog

import (
	"io"
	"log"
	"os"
)

// Logger is the package-wide diagnostic sink. Stdout is reserved for
// requested data and stderr for progress and diagnostics, so the default
// writer is os.Stderr.
var Logger = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput redirects diagnostics to w.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// Warnf logs a non-fatal warning, e.g. a source file's size changing
// between indexing and streaming.
func Warnf(format string, args ...any) {
	Logger.Printf("warning: "+format, args...)
}

// Infof logs routine progress information.
func Infof(format string, args ...any) {
	Logger.Printf(format, args...)
}
