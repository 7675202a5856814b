// Package clockutil provides the single authoritative wall-clock source used
// by the contract manager's refund check. See DESIGN.md's "Open Question
// resolutions" for why this is always a local clock and never a remote HTTP
// time service.
package clockutil

import "github.com/lightningnetwork/lnd/clock"

// Clock is re-exported from lnd/clock so callers of this module don't need
// to import the upstream package directly.
type Clock = clock.Clock

// New returns the default, real-time Clock implementation.
func New() Clock {
	return clock.NewDefaultClock()
}
