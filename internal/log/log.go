// Package log provides the freestanding Info/Warning/Error helpers used
// throughout jobctl, mirroring the prefixed stdout/stderr logging the
// teacher project uses instead of a structured logger.
package log

import (
	"fmt"
	"os"
)

// Info prints an informational message to stdout, prefixed with "jobctl: ".
func Info(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "jobctl: "+format+"\n", args...)
}

// Warning prints a warning message to stderr, prefixed with "jobctl: warning: ".
func Warning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "jobctl: warning: "+format+"\n", args...)
}

// Error prints an error message to stderr, prefixed with "jobctl: error: ".
func Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "jobctl: error: "+format+"\n", args...)
}
