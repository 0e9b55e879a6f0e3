package errors

import (
	"fmt"
	"io"
	"os"

	"github.com/julianstephens/habitnudge/internal/logger"
)

// Swapped in tests.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// Format renders err the way the CLI prints it, "" for nil.
func Format(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}

// Fatal prints err, runs cleanup in order and exits 1. Deferred calls in the
// caller do not run, so anything that must be closed goes in cleanup.
// A nil err is a no-op.
func Fatal(err error, cleanup ...func() error) {
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(stderr, Format(err))
	for _, fn := range cleanup {
		if cerr := fn(); cerr != nil {
			logger.Warn("Cleanup after failure returned an error", "error", cerr)
		}
	}
	exit(1)
}
