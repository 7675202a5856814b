package txbuilder

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcwire"
	"github.com/dlc-link/dlc-engine/walletiface"
)

// FundingTxInputs is one party's contribution to a funding transaction:
// the UTXOs it commits and where its change, if any, should go.
type FundingTxInputs struct {
	Utxos     []walletiface.Utxo
	ChangeSPK []byte
	Change    btcutil.Amount
}

// NewFundingTx assembles the 2-of-2 funding transaction: both parties'
// inputs, the funding output, and each party's change output (omitted if
// it would be dust), matching sweep/txgenerator.go's weight-then-fee-
// then-output-value assembly order.
func NewFundingTx(offer, accept FundingTxInputs, fundingOutput *wire.TxOut, feeRatePerVb uint64) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	for _, u := range offer.Utxos {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: u.OutPoint, Sequence: wire.MaxTxInSequenceNum})
	}
	for _, u := range accept.Utxos {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: u.OutPoint, Sequence: wire.MaxTxInSequenceNum})
	}
	if len(tx.TxIn) == 0 {
		return nil, fmt.Errorf("txbuilder: funding transaction has no inputs")
	}

	tx.AddTxOut(fundingOutput)

	dust := DustLimit(feeRatePerVb)
	if offer.Change > dust {
		tx.AddTxOut(&wire.TxOut{Value: int64(offer.Change), PkScript: offer.ChangeSPK})
	}
	if accept.Change > dust {
		tx.AddTxOut(&wire.TxOut{Value: int64(accept.Change), PkScript: accept.ChangeSPK})
	}

	return tx, nil
}

// FundingInputsFromWire converts the wire representation of one party's
// funding inputs back into the UTXOs the builder operates on, resolving
// each input's previous output from chain data the caller already holds.
func FundingInputsFromWire(inputs []dlcwire.FundingInput, outputs map[wire.OutPoint]wire.TxOut) ([]walletiface.Utxo, error) {
	utxos := make([]walletiface.Utxo, len(inputs))
	for i, in := range inputs {
		out, ok := outputs[in.PrevOut]
		if !ok {
			return nil, fmt.Errorf("txbuilder: no known output for funding input %s", in.PrevOut)
		}
		utxos[i] = walletiface.Utxo{OutPoint: in.PrevOut, Output: out}
	}
	return utxos, nil
}
