package txbuilder

import (
	"github.com/btcsuite/btcd/wire"
)

// CETFee is the fee subtracted from a CET's total payout before splitting
// it between the two payout outputs, at feeRatePerVb for a CET's fixed
// shape (one input, two outputs).
func CETFee(feeRatePerVb uint64) int64 {
	return int64(EstimateFee(0, true, 2, feeRatePerVb))
}

// BuildCET constructs the Contract Execution Transaction paying out
// offerPayout/acceptPayout from the funding output for one payout-curve
// point. Its single input spends the funding output with CetNSequence, and
// its signature hash is what Sign/Decrypt in adaptor.go operate over.
// Either payout may be zero, in which case that output is omitted.
func BuildCET(fundingOutPoint wire.OutPoint, offerPayoutSPK, acceptPayoutSPK []byte, offerPayout, acceptPayout int64) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutPoint,
		Sequence:         CetNSequence,
	})
	if offerPayout > 0 {
		tx.AddTxOut(&wire.TxOut{Value: offerPayout, PkScript: offerPayoutSPK})
	}
	if acceptPayout > 0 {
		tx.AddTxOut(&wire.TxOut{Value: acceptPayout, PkScript: acceptPayoutSPK})
	}
	return tx
}
