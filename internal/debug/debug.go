// Package debug provides env-gated diagnostic logging.
package debug

import (
	"fmt"
	"os"
)

var enabled = os.Getenv("ROWMESH_DEBUG") != ""

// Enabled reports whether debug logging is on.
func Enabled() bool {
	return enabled
}

// Logf writes a diagnostic line to stderr when ROWMESH_DEBUG is set.
func Logf(format string, args ...any) {
	if !enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "debug: "+format+"\n", args...)
}
