package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/txbuilder"
)

// AdaptorInfo is the per-contract-info bundle of the counterparty's CET
// adaptor signatures, laid out one run per oracle combination (in
// txbuilder.Combinations order for the info's threshold), each run holding
// one signature per payout-curve point:
//
//	Sigs[comboIdx*len(PayoutCurve) + payoutIdx]
//
// A record holds the counterparty's signatures once they are known: the
// offerer fills this from the accept message, the accepter from the sign
// message.
type AdaptorInfo struct {
	Sigs []txbuilder.AdaptorSignature
}

// AcceptedContract is reached once the accepting party has funded and
// adaptor-signed every CET plus the refund transaction, but before the
// offerer has countersigned the funding transaction.
type AcceptedContract struct {
	Offered OfferedContract

	// ContractIDValue is the funding transaction's txid, the contract's
	// stable id from this state onward.
	ContractIDValue ID

	AcceptPubkey *btcec.PublicKey

	// AcceptPrivkey is the accepting party's secret half of AcceptPubkey,
	// retained only on the accepter's own record. The offerer's copy of
	// this contract carries nil here.
	AcceptPrivkey *btcec.PrivateKey

	// FundingRedeemScript is the 2-of-2 multisig script the funding
	// output commits to; every CET and refund sighash is taken over it.
	FundingRedeemScript []byte

	FundingTx *wire.MsgTx
	RefundTx  *wire.MsgTx

	// AdaptorInfos is indexed the same way as Offered.ContractInfos.
	AdaptorInfos []AdaptorInfo

	AcceptMessage *dlcwire.AcceptDlc
}

func (a *AcceptedContract) State() State           { return StateAccepted }
func (a *AcceptedContract) TempContractID() TempID { return a.Offered.TempID }
