package contract

import (
	"github.com/dlc-link/dlc-engine/dlcwire"
)

// SignedContract is reached once both parties' CET and refund signatures
// have been exchanged: the offering side stores it after countersigning
// the accept message, the accepting side after completing the funding
// transaction's witnesses, just before it broadcasts that transaction.
// It is the last variant both
// parties assemble identically from the same wire messages; Confirmed,
// PreClosed, Closed and Refunded all embed it unchanged.
type SignedContract struct {
	Accepted AcceptedContract

	SignMessage *dlcwire.SignDlc
}

func (s *SignedContract) State() State           { return StateSigned }
func (s *SignedContract) TempContractID() TempID { return s.Accepted.Offered.TempID }
