package txbuilder

import (
	"github.com/btcsuite/btcd/wire"
)

// BuildRefundTx constructs the refund transaction: it returns each party's
// original collateral from the funding output once RefundLocktime has
// passed and no CET has closed the contract, with an absolute locktime
// (not a relative nSequence) so it can't be mined before that time.
func BuildRefundTx(fundingOutPoint wire.OutPoint, offerPayoutSPK, acceptPayoutSPK []byte, offerCollateral, acceptCollateral int64, lockTime uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.LockTime = lockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutPoint,
		Sequence:         wire.MaxTxInSequenceNum - 1, // locktime-enabled, not yet final
	})
	if offerCollateral > 0 {
		tx.AddTxOut(&wire.TxOut{Value: offerCollateral, PkScript: offerPayoutSPK})
	}
	if acceptCollateral > 0 {
		tx.AddTxOut(&wire.TxOut{Value: acceptCollateral, PkScript: acceptPayoutSPK})
	}
	return tx
}
