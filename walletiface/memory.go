package walletiface

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/dlc-link/dlc-engine/dlcerr"
)

// Memory is an in-process Wallet for tests: it owns a fixed UTXO set and
// signs with throwaway per-UTXO keys instead of a real keychain.
type Memory struct {
	params *chaincfg.Params

	mu      sync.Mutex
	utxos   []Utxo
	locked  map[wire.OutPoint]bool
	keys    map[wire.OutPoint]*btcec.PrivateKey
}

// NewMemory creates an empty Memory wallet for the given network params.
func NewMemory(params *chaincfg.Params) *Memory {
	return &Memory{
		params: params,
		locked: make(map[wire.OutPoint]bool),
		keys:   make(map[wire.OutPoint]*btcec.PrivateKey),
	}
}

// AddUTXO seeds the wallet with a spendable output, owned by key.
func (m *Memory) AddUTXO(utxo Utxo, key *btcec.PrivateKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utxos = append(m.utxos, utxo)
	m.keys[utxo.OutPoint] = key
}

func (m *Memory) NewAddress(_ context.Context) (btcutil.Address, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "generating address key")
	}
	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(pkHash, m.params)
}

func (m *Memory) NewSecretKey(_ context.Context) (*btcec.PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "generating secret key")
	}
	return key, nil
}

// UtxosForAmount selects unlocked UTXOs in insertion order until their
// total reaches amount. The fee rate is not used, so the selection covers
// amount only, not fees.
func (m *Memory) UtxosForAmount(_ context.Context, amount btcutil.Amount, _ uint64, lock bool) ([]Utxo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var selected []Utxo
	var total btcutil.Amount
	for _, u := range m.utxos {
		if m.locked[u.OutPoint] {
			continue
		}
		selected = append(selected, u)
		total += btcutil.Amount(u.Output.Value)
		if total >= amount {
			break
		}
	}
	if total < amount {
		return nil, dlcerr.New(dlcerr.KindWallet,
			"insufficient funds: need %d, have %d", amount, total)
	}

	if lock {
		for _, u := range selected {
			m.locked[u.OutPoint] = true
		}
	}
	return selected, nil
}

func (m *Memory) SignInput(_ context.Context, tx *wire.MsgTx, idx int, prevOut *wire.TxOut, redeemScript []byte) (*InputScript, error) {
	m.mu.Lock()
	op := tx.TxIn[idx].PreviousOutPoint
	key, ok := m.keys[op]
	m.mu.Unlock()
	if !ok {
		return nil, dlcerr.New(dlcerr.KindWallet, "no key for input %s", op)
	}

	script := redeemScript
	if script == nil {
		var err error
		script, err = txscript.PayToAddrScript(mustP2WKH(key, m.params))
		if err != nil {
			return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "building sign script for %s", op)
		}
	}

	sig, err := txscript.RawTxInWitnessSignature(
		tx, txscript.NewTxSigHashes(tx, emptyPrevOutFetcher(prevOut, idx)),
		idx, prevOut.Value, script, txscript.SigHashAll, key,
	)
	if err != nil {
		return nil, dlcerr.Wrap(dlcerr.KindWallet, err, "signing input %d", idx)
	}

	return &InputScript{
		Witness: wire.TxWitness{sig, key.PubKey().SerializeCompressed()},
	}, nil
}

func (m *Memory) ImportAddress(_ context.Context, _ btcutil.Address) error {
	return nil
}

func mustP2WKH(key *btcec.PrivateKey, params *chaincfg.Params) btcutil.Address {
	pkHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, params)
	if err != nil {
		panic(err)
	}
	return addr
}

func emptyPrevOutFetcher(prevOut *wire.TxOut, idx int) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	fetcher.AddPrevOut(wire.OutPoint{Index: uint32(idx)}, prevOut)
	return fetcher
}
