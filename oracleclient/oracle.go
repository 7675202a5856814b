// Package oracleclient implements the manager's view of a federated
// oracle: fetching announcements and attestations over HTTP from an
// attestor.Server, and exposing its public key for nonce-locked signature
// verification. Failure of any single oracle is tolerated by the caller
// (dlcmanager's quorum fan-out); this package only distinguishes success
// from error, it does not retry.
package oracleclient

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/dlc-link/dlc-engine/dlcwire"
)

// Oracle is the manager's view of one federated attestor.
type Oracle interface {
	// PublicKey returns the oracle's long-lived Schnorr public key.
	PublicKey(ctx context.Context) (*btcec.PublicKey, error)

	// GetAnnouncement fetches the announcement for eventID.
	GetAnnouncement(ctx context.Context, eventID string) (*dlcwire.OracleAnnouncement, error)

	// GetAttestation fetches the attestation for eventID. It returns an
	// error if the event hasn't been attested yet.
	GetAttestation(ctx context.Context, eventID string) (*dlcwire.OracleAttestation, error)
}
