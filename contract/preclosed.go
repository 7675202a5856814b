package contract

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// PreClosedContract is reached once a CET has been broadcast but not yet
// confirmed to NB_CONFIRMATIONS depth.
type PreClosedContract struct {
	Confirmed ConfirmedContract

	// ContractInfoIndex selects which of Confirmed's contract infos
	// supplied the attestations this CET decrypts against.
	ContractInfoIndex int

	SignedCET    *wire.MsgTx
	Attestations []*dlcwire.OracleAttestation
}

func (p *PreClosedContract) State() State { return StatePreClosed }
func (p *PreClosedContract) TempContractID() TempID {
	return p.Confirmed.Signed.Accepted.Offered.TempID
}
