// Package chainiface is the manager's view of the blockchain: broadcast,
// confirmation depth, raw transaction fetch and network identification,
// grounded on the shape of the teacher's chainntfs.ChainNotifier but
// reduced to the polling operations the reconciliation loop actually
// needs instead of a subscription/notification interface.
package chainiface

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// NetworkTag identifies which bitcoin network a ChainBackend is
// connected to.
type NetworkTag uint8

const (
	NetworkMainnet NetworkTag = iota
	NetworkTestnet
	NetworkSignet
	NetworkRegtest
)

func (n NetworkTag) String() string {
	switch n {
	case NetworkMainnet:
		return "mainnet"
	case NetworkTestnet:
		return "testnet"
	case NetworkSignet:
		return "signet"
	case NetworkRegtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// Params returns the chaincfg.Params matching this tag.
func (n NetworkTag) Params() *chaincfg.Params {
	switch n {
	case NetworkMainnet:
		return &chaincfg.MainNetParams
	case NetworkTestnet:
		return &chaincfg.TestNet3Params
	case NetworkSignet:
		return &chaincfg.SigNetParams
	case NetworkRegtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// ChainBackend is the manager's read/write view of the chain. A
// confirmation count of 0 means "not yet observed or in mempool only".
type ChainBackend interface {
	// Broadcast submits tx to the network. A rebroadcast of an
	// already-accepted transaction is a harmless no-op.
	Broadcast(ctx context.Context, tx *wire.MsgTx) error

	// Confirmations returns the number of confirmations txid has, or 0
	// if unobserved.
	Confirmations(ctx context.Context, txid chainhash.Hash) (uint32, error)

	// GetTx fetches a previously broadcast transaction by its txid.
	GetTx(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)

	// Network reports which network this backend is actually connected
	// to; callers must not assume a fixed tag.
	Network() NetworkTag
}
