package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// OfferedContract is the contract's starting variant, created either by
// SendOffer (we are the offering party) or OnOffer (we received the
// offer). It carries everything needed to build or verify the funding,
// CET and refund transactions once the counterparty accepts.
type OfferedContract struct {
	TempID TempID

	// IsOfferer is true when this process sent the offer; false when it
	// was received from CounterParty.
	IsOfferer bool

	CounterParty *btcec.PublicKey

	ContractInfos []dlcwire.ContractInfo

	OfferCollateral  uint64
	AcceptCollateral uint64
	FeeRatePerVb     uint64

	// RefundLocktime is the absolute unix time after which either party
	// may broadcast the refund transaction, bounded to [0, FIFTY_YEARS]
	// per spec.md §4.6.2.
	RefundLocktime uint32

	ProtocolFeeBasisPoints uint32
	ProtocolFeeDenominator uint64
	ProtocolFeeAddress     string

	FundingPubkey *btcec.PublicKey

	// FundingPrivkey is the offerer's secret half of FundingPubkey,
	// retained only on the offering party's own record so it can sign
	// CET/refund spends at closure. A received offer carries nil here.
	FundingPrivkey *btcec.PrivateKey

	PayoutSPK     []byte
	ChangeSPK     []byte
	FundingInputs []dlcwire.FundingInput

	// OfferMessage is the bit-exact wire message this contract was
	// created from (when received) or will be sent as (when sent).
	OfferMessage *dlcwire.OfferDlc
}

func (o *OfferedContract) State() State           { return StateOffered }
func (o *OfferedContract) TempContractID() TempID { return o.TempID }

// TotalCollateral returns the contract's total collateral, the sum both
// parties commit across the funding transaction.
func (o *OfferedContract) TotalCollateral() uint64 {
	return o.OfferCollateral + o.AcceptCollateral
}
