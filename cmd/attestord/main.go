// attestord runs a single federated attestor: the oracle core behind an
// HTTP surface, persisting its event records either in process memory or
// under the remote KV storage service.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	flags "github.com/jessevdk/go-flags"

	"github.com/dlc-link/dlc-engine/attestor"
)

type config struct {
	Listen     string `long:"listen" description:"address to serve the oracle surface on" default:":8801"`
	PrivKey    string `long:"privkey" description:"hex-encoded long-lived attestor signing key" required:"true"`
	StorageURL string `long:"storageurl" description:"remote KV storage service base URL; empty keeps events in memory"`
	StorageKey string `long:"storagekey" description:"hex-encoded key authenticating against the storage service"`
}

func attestorMain() error {
	var cfg config
	if _, err := flags.Parse(&cfg); err != nil {
		return err
	}

	rawKey, err := hex.DecodeString(cfg.PrivKey)
	if err != nil {
		return fmt.Errorf("decoding attestor key: %w", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(rawKey)

	var store attestor.EventStore = attestor.NewMemoryStore()
	if cfg.StorageURL != "" {
		rawStorageKey, err := hex.DecodeString(cfg.StorageKey)
		if err != nil {
			return fmt.Errorf("decoding storage key: %w", err)
		}
		storageKey, _ := btcec.PrivKeyFromBytes(rawStorageKey)
		store = attestor.NewRemoteStore(cfg.StorageURL, storageKey)
	}

	oracle := attestor.New(privKey, store, nil)
	return http.ListenAndServe(cfg.Listen, attestor.NewServer(oracle))
}

func main() {
	if err := attestorMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
