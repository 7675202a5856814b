// dlcengine wires the contract manager against its production
// collaborators — an Esplora chain backend, the remote KV contract store,
// and a set of attestor clients — and drives the periodic reconciliation
// loop. Peer-message transport, wallet key ceremonies and richer CLI
// surfaces live outside this module; the in-memory wallet here exists so
// the composition runs end to end.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	flags "github.com/jessevdk/go-flags"

	"github.com/dlc-link/dlc-engine/chainiface"
	"github.com/dlc-link/dlc-engine/contractstore"
	"github.com/dlc-link/dlc-engine/dlcmanager"
	"github.com/dlc-link/dlc-engine/oracleclient"
	"github.com/dlc-link/dlc-engine/ticker"
	"github.com/dlc-link/dlc-engine/walletiface"
)

type config struct {
	Network       string   `long:"network" description:"bitcoin network: mainnet, testnet, signet or regtest" default:"regtest"`
	EsploraURL    string   `long:"esploraurl" description:"Esplora-style chain data provider base URL" required:"true"`
	StorageURL    string   `long:"storageurl" description:"remote KV storage service base URL" required:"true"`
	StorageKey    string   `long:"storagekey" description:"hex-encoded key authenticating against the storage service" required:"true"`
	OracleURLs    []string `long:"oracleurl" description:"attestor base URL; repeat once per quorum member" required:"true"`
	FeeRatePerVb  uint64   `long:"feerate" description:"default fee rate in sat/vB off-regtest" default:"400"`
	CheckInterval uint64   `long:"checkinterval" description:"seconds between reconciliation ticks" default:"30"`
}

func networkTag(name string) (chainiface.NetworkTag, error) {
	switch name {
	case "mainnet":
		return chainiface.NetworkMainnet, nil
	case "testnet":
		return chainiface.NetworkTestnet, nil
	case "signet":
		return chainiface.NetworkSignet, nil
	case "regtest":
		return chainiface.NetworkRegtest, nil
	}
	return 0, fmt.Errorf("unknown network %q", name)
}

func engineMain() error {
	var cfg config
	if _, err := flags.Parse(&cfg); err != nil {
		return err
	}

	network, err := networkTag(cfg.Network)
	if err != nil {
		return err
	}
	rawKey, err := hex.DecodeString(cfg.StorageKey)
	if err != nil {
		return fmt.Errorf("decoding storage key: %w", err)
	}
	storageKey, _ := btcec.PrivKeyFromBytes(rawKey)

	oracles := make([]oracleclient.Oracle, len(cfg.OracleURLs))
	for i, u := range cfg.OracleURLs {
		oracles[i] = oracleclient.NewHTTPOracle(u)
	}

	manager, err := dlcmanager.New(dlcmanager.Config{
		Wallet:       walletiface.NewMemory(network.Params()),
		Chain:        chainiface.NewEsplora(cfg.EsploraURL, network),
		Store:        contractstore.NewRemote(cfg.StorageURL, storageKey),
		Oracles:      oracles,
		FeeRatePerVb: cfg.FeeRatePerVb,
	})
	if err != nil {
		return err
	}

	tick := ticker.New(time.Duration(cfg.CheckInterval) * time.Second)
	tick.Resume()
	defer tick.Stop()

	for range tick.Ticks() {
		results, err := manager.PeriodicCheck(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "periodic check: %v\n", err)
			continue
		}
		for _, r := range results {
			fmt.Printf("contract %s advanced (event %s)\n", r.ContractID, r.EventID)
		}
	}
	return nil
}

func main() {
	if err := engineMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
