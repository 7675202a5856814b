package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// ID is a contract's stable handle: the little-endian txid of its funding
// transaction. It is only meaningful from StateAccepted onward.
type ID = chainhash.Hash

// TempID names an offered contract before its funding transaction (and
// thus its ID) is deterministic. It is the only stable handle for a
// contract in StateOffered.
type TempID = chainhash.Hash

// Contract is the tagged union of spec.md §3: every lifecycle variant
// implements it, exposing just enough to route a record without a type
// switch at every call site. Callers that need variant-specific fields
// still switch on the concrete type (see dlcmanager), exactly as the
// teacher's ContractResolver callers switch on resolver kind.
//
// Transition diagram (spec.md §4.6.1):
//
//	Offered --accept--> Accepted --sign--> Signed --confirmations>=6--> Confirmed
//	   |                   |                 |                              |
//	   |                   |                 |                              +-- threshold attestations --> PreClosed --CET confirmed--> Closed
//	   |                   |                 |                              |
//	   |                   |                 |                              +-- refund locktime reached --> Refunded
//	   |                   |                 +-- verify failure --> FailedSign
//	   |                   +-- verify failure --> FailedAccept
//	   +-- counterparty rejects --> Rejected
type Contract interface {
	// State reports which DAG variant this record currently occupies.
	State() State

	// TempContractID returns the temporary id assigned when this
	// contract was first offered. Stable across every variant.
	TempContractID() TempID
}

// ContractID returns c's stable funding-txid handle, if this variant has
// reached one (StateAccepted onward). Offered, Rejected and FailedAccept
// contracts have no funding transaction yet and so return ok=false.
func ContractID(c Contract) (ID, bool) {
	switch v := c.(type) {
	case *OfferedContract:
		return ID{}, false
	case *RejectedContract:
		return ID{}, false
	case *FailedAcceptContract:
		return ID{}, false
	case *AcceptedContract:
		return v.ContractIDValue, true
	case *SignedContract:
		return v.Accepted.ContractIDValue, true
	case *ConfirmedContract:
		return v.Signed.Accepted.ContractIDValue, true
	case *PreClosedContract:
		return v.Confirmed.Signed.Accepted.ContractIDValue, true
	case *ClosedContract:
		return v.PreClosed.Confirmed.Signed.Accepted.ContractIDValue, true
	case *RefundedContract:
		return v.Confirmed.Signed.Accepted.ContractIDValue, true
	case *FailedSignContract:
		return v.Accepted.ContractIDValue, true
	default:
		return ID{}, false
	}
}

// CounterParty returns the other party's public key, present in every
// variant once the offer itself is known.
func CounterParty(c Contract) *btcec.PublicKey {
	switch v := c.(type) {
	case *OfferedContract:
		return v.CounterParty
	case *RejectedContract:
		return v.Offered.CounterParty
	case *FailedAcceptContract:
		return v.Offered.CounterParty
	case *AcceptedContract:
		return v.Offered.CounterParty
	case *SignedContract:
		return v.Accepted.Offered.CounterParty
	case *ConfirmedContract:
		return v.Signed.Accepted.Offered.CounterParty
	case *PreClosedContract:
		return v.Confirmed.Signed.Accepted.Offered.CounterParty
	case *ClosedContract:
		return v.PreClosed.Confirmed.Signed.Accepted.Offered.CounterParty
	case *RefundedContract:
		return v.Confirmed.Signed.Accepted.Offered.CounterParty
	case *FailedSignContract:
		return v.Accepted.Offered.CounterParty
	default:
		return nil
	}
}

// contractInfos returns the negotiated contract infos backing c, the
// closed set of (announcements, payout curve, threshold) tuples every
// state beyond Offered carries forward unchanged.
func contractInfos(c Contract) []dlcwire.ContractInfo {
	switch v := c.(type) {
	case *OfferedContract:
		return v.ContractInfos
	case *AcceptedContract:
		return v.Offered.ContractInfos
	case *SignedContract:
		return v.Accepted.Offered.ContractInfos
	case *ConfirmedContract:
		return v.Signed.Accepted.Offered.ContractInfos
	case *PreClosedContract:
		return v.Confirmed.Signed.Accepted.Offered.ContractInfos
	case *ClosedContract:
		return v.PreClosed.Confirmed.Signed.Accepted.Offered.ContractInfos
	case *RefundedContract:
		return v.Confirmed.Signed.Accepted.Offered.ContractInfos
	default:
		return nil
	}
}
