// Package walletiface is the manager's view of the wallet: address and
// key vending, UTXO selection, and input signing, grounded on the
// teacher's lnwallet.ChannelContribution/InputScript shapes generalized
// from channel funding to DLC funding/CET/refund signing.
package walletiface

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Utxo is one spendable output the wallet can commit to a funding
// transaction.
type Utxo struct {
	OutPoint wire.OutPoint
	Output   wire.TxOut
}

// InputScript carries the witness a Wallet produces for one signed input,
// matching the teacher's lnwallet.InputScript shape.
type InputScript struct {
	Witness    wire.TxWitness
	SigScript  []byte
}

// Wallet is the manager's capability to fund and sign transactions
// without owning key-derivation ceremonies itself.
type Wallet interface {
	// NewAddress returns a fresh receive address.
	NewAddress(ctx context.Context) (btcutil.Address, error)

	// NewSecretKey returns a fresh secp256k1 key pair, used for a
	// contract's funding/CET/refund signing key.
	NewSecretKey(ctx context.Context) (*btcec.PrivateKey, error)

	// UtxosForAmount selects UTXOs covering amount plus fees at feeRate.
	// If lock is true, the selected UTXOs are reserved, preventing a
	// double-spend across a concurrent offer; the interface has no
	// operation that releases them.
	UtxosForAmount(ctx context.Context, amount btcutil.Amount, feeRate uint64, lock bool) ([]Utxo, error)

	// SignInput produces the witness for tx's input idx, spending
	// prevOut. redeemScript is non-nil only for a 2-of-2 multisig
	// funding input.
	SignInput(ctx context.Context, tx *wire.MsgTx, idx int, prevOut *wire.TxOut, redeemScript []byte) (*InputScript, error)

	// ImportAddress begins watching addr for incoming funds, used by the
	// manager to observe a counterparty-derived funding script.
	ImportAddress(ctx context.Context, addr btcutil.Address) error
}
