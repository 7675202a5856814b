package txbuilder

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// MultisigWitness assembles the witness stack spending the 2-of-2 funding
// output: a leading empty item for OP_CHECKMULTISIG's extra pop, both
// signatures in the same order FundingScript laid the pubkeys out, and the
// redeem script itself. sigA/sigB belong to pubA/pubB respectively; the
// ordering swap here must mirror FundingScript's exactly or the witness
// pairs signatures with the wrong keys.
func MultisigWitness(redeemScript []byte, pubA, pubB *btcec.PublicKey, sigA, sigB []byte) wire.TxWitness {
	a := pubA.SerializeCompressed()
	b := pubB.SerializeCompressed()
	if bytes.Compare(a, b) == -1 {
		sigA, sigB = sigB, sigA
	}
	return wire.TxWitness{nil, sigA, sigB, redeemScript}
}
