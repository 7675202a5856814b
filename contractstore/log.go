package contractstore

import (
	"github.com/btcsuite/btclog"

	"github.com/dlc-link/dlc-engine/logutil"
)

var log = logutil.NewSubsystemLogger("STOR")

// UseLogger lets a cmd/* main point this package's logger at a
// differently-configured backend.
func UseLogger(l btclog.Logger) {
	log = l
}
