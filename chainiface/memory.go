package chainiface

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcerr"
)

// Memory is an in-process ChainBackend for tests: it tracks broadcast
// transactions and lets the test set each txid's confirmation count
// directly, rather than mining blocks.
type Memory struct {
	network NetworkTag

	mu            sync.Mutex
	broadcast     map[chainhash.Hash]*wire.MsgTx
	confirmations map[chainhash.Hash]uint32
}

// NewMemory creates a Memory backend reporting network.
func NewMemory(network NetworkTag) *Memory {
	return &Memory{
		network:       network,
		broadcast:     make(map[chainhash.Hash]*wire.MsgTx),
		confirmations: make(map[chainhash.Hash]uint32),
	}
}

func (m *Memory) Network() NetworkTag { return m.network }

func (m *Memory) Broadcast(_ context.Context, tx *wire.MsgTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast[tx.TxHash()] = tx.Copy()
	return nil
}

// SetConfirmations sets the confirmation count a later Confirmations call
// will report for txid.
func (m *Memory) SetConfirmations(txid chainhash.Hash, n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations[txid] = n
}

func (m *Memory) Confirmations(_ context.Context, txid chainhash.Hash) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmations[txid], nil
}

func (m *Memory) GetTx(_ context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.broadcast[txid]
	if !ok {
		return nil, dlcerr.New(dlcerr.KindBlockchain, "unknown tx %s", txid)
	}
	return tx, nil
}

// WasBroadcast reports whether txid has been submitted via Broadcast.
func (m *Memory) WasBroadcast(txid chainhash.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.broadcast[txid]
	return ok
}
