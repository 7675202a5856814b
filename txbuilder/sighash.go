package txbuilder

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SigHash returns the BIP143 witness signature hash for tx's input idx,
// spending a P2WSH output worth value locked by redeemScript. Every CET
// and refund signature is taken over this hash; funding inputs are signed
// by the wallet instead.
func SigHash(tx *wire.MsgTx, idx int, redeemScript []byte, value int64) ([32]byte, error) {
	prevOut := tx.TxIn[idx].PreviousOutPoint
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	fetcher.AddPrevOut(prevOut, &wire.TxOut{Value: value, PkScript: redeemScript})

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcWitnessSigHash(
		redeemScript, sigHashes, txscript.SigHashAll, tx, idx, value,
	)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}
