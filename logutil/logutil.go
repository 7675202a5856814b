// Package logutil centralizes the btclog.Logger bootstrapping every other
// package in this module repeats, following the teacher's per-subsystem
// logger convention (lnd.go's ltndLog/srvrLog/rpcsLog family) without
// duplicating the same backend-construction boilerplate in every package's
// log.go.
package logutil

import (
	"os"

	"github.com/btcsuite/btclog"
)

var backend = btclog.NewBackend(os.Stdout)

// NewSubsystemLogger returns a logger tagged with the given subsystem name,
// writing to stdout at info level. Packages call this once at init time for their
// package-level `log` var, then expose a UseLogger function so a `cmd/*`
// main can raise the level.
func NewSubsystemLogger(subsystem string) btclog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(btclog.LevelInfo)
	return l
}
